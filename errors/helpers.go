package errors

// WrapOp wraps an error with consistent Op and Component propagation.
// If err is already a SyncError its code and flags are preserved and
// only missing fields are filled in, on a copy so shared error values
// are never rewritten. If err is nil, returns nil.
func WrapOp(err error, op Operation, component string) error {
	if err == nil {
		return nil
	}
	if syncErr, ok := err.(*SyncError); ok {
		if syncErr.Op != "" && syncErr.Component != "" {
			return syncErr
		}
		clone := *syncErr
		if clone.Op == "" {
			clone.Op = op
		}
		if clone.Component == "" {
			clone.Component = component
		}
		return &clone
	}
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// WithEntity annotates a SyncError with the entity it concerns, copying
// before filling in missing fields. Non-sync errors are returned
// unchanged.
func WithEntity(err error, entityType, entityID string) error {
	if err == nil {
		return nil
	}
	syncErr, ok := err.(*SyncError)
	if !ok {
		return err
	}
	if syncErr.EntityType != "" && syncErr.EntityID != "" {
		return err
	}
	clone := *syncErr
	if clone.EntityType == "" {
		clone.EntityType = entityType
	}
	if clone.EntityID == "" {
		clone.EntityID = entityID
	}
	return &clone
}
