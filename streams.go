package librarysync

import "sync"

// streamBuffer is the per-subscriber channel depth. Events are UI
// hints; a subscriber that falls behind loses events rather than
// blocking the sync loop.
const streamBuffer = 16

// stream is a broadcast fanout with drop-if-slow delivery. Subscribers
// may come and go at any time.
type stream[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

func newStream[T any]() *stream[T] {
	return &stream[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a listener and returns its channel along with an
// unsubscribe function. Unsubscribing closes the channel.
func (s *stream[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan T, streamBuffer)
	s.subs[id] = ch

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers the event to every subscriber whose buffer has room
// and drops it for the rest.
func (s *stream[T]) Publish(event T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
