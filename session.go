package librarysync

import "time"

// SessionStatus is the lifecycle state of a sync session.
type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// SyncSession records one synchronization run. At most one session is
// Running process-wide.
type SyncSession struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Status    SessionStatus

	ItemsProcessed    int
	ConflictsDetected int
	ConflictsResolved int

	// Errors lists the per-entity failures recovered during the run.
	Errors []string
}

// snapshot returns an independent copy safe to hand to callers.
func (s *SyncSession) snapshot() SyncSession {
	out := *s
	out.Errors = make([]string, len(s.Errors))
	copy(out.Errors, s.Errors)
	return out
}

// Progress reports how far a running session has advanced, per entity
// type, as a fraction in [0, 1].
type Progress struct {
	EntityType string
	Fraction   float64
}
