package realtime

import "sync"

// Session is the handle for one open transport connection. It owns a
// bounded outbound queue drained by the connection's writer; a full queue
// marks the member unreachable.
type Session struct {
	id          string
	principalID string

	out       chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(id, principalID string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	return &Session{
		id:          id,
		principalID: principalID,
		out:         make(chan Event, buffer),
		closed:      make(chan struct{}),
	}
}

// ID returns the session handle identifier.
func (s *Session) ID() string { return s.id }

// PrincipalID returns the user this connection authenticated as.
func (s *Session) PrincipalID() string { return s.principalID }

// Events exposes the outbound queue to the connection writer.
func (s *Session) Events() <-chan Event { return s.out }

// Done is closed when the session has been dropped.
func (s *Session) Done() <-chan struct{} { return s.closed }

// enqueue appends an event to the outbound queue without blocking. It
// reports false when the session is closed or the queue is full.
func (s *Session) enqueue(ev Event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.out <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
