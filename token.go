package librarysync

import "sync"

// CancellationToken coordinates cooperative cancellation of a running
// sync session. The orchestrator checks it between entities and
// batches; in-flight network calls are allowed to complete.
type CancellationToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancellationToken returns an uncancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel requests cancellation. Safe to call more than once.
func (t *CancellationToken) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether cancellation has been requested.
func (t *CancellationToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancellation, for select loops.
func (t *CancellationToken) Done() <-chan struct{} {
	return t.done
}
