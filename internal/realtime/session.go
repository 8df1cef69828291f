package realtime

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrQueueFull     = errors.New("session outbound queue full")
)

// Session is one live connection. It owns only its outbound queue; room
// membership lives in the Registry.
type Session struct {
	id     uuid.UUID
	userID uuid.UUID
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(userID uuid.UUID, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		id:     uuid.New(),
		userID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID     { return s.id }
func (s *Session) UserID() uuid.UUID { return s.userID }

// Enqueue hands msg to the writer without blocking.
func (s *Session) Enqueue(msg []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Outbound is drained by the connection's write pump.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the session dead. The send channel is left open so a racing
// Enqueue can never panic.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
