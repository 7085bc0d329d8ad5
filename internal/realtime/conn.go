package realtime

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// Conn is one live client connection. Frames queue on a bounded buffer that a
// single writer drains.
type Conn struct {
	id     string
	userID string
	send   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(userID string, buffer int) *Conn {
	return &Conn{
		id:     ulid.Make().String(),
		userID: userID,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) UserID() string {
	return c.userID
}

// enqueue never blocks. A connection that cannot keep up is closed rather
// than silently skipping frames, so its client reconnects and re-syncs.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.close()
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Done is closed once the connection is shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}
