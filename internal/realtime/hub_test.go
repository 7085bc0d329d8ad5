package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_JoinLeave(t *testing.T) {
	h := NewHub()
	a := newConn("alice", 4)
	b := newConn("bob", 4)

	assert.True(t, h.Join("b1", a))
	assert.False(t, h.Join("b1", a))
	assert.True(t, h.Join("b1", b))
	assert.True(t, h.Join("b2", a))
	assert.Equal(t, 2, h.roomSize("b1"))

	assert.True(t, h.Leave("b1", b))
	assert.False(t, h.Leave("b1", b))
	assert.False(t, h.Leave("b9", b))
	assert.Equal(t, 1, h.roomSize("b1"))

	h.leaveAll(a)
	assert.Equal(t, 0, h.roomSize("b1"))
	assert.Equal(t, 0, h.roomSize("b2"))
	assert.Empty(t, h.rooms)
}

func TestHub_BroadcastOncePerConnection(t *testing.T) {
	h := NewHub()
	a := newConn("alice", 4)
	b := newConn("bob", 4)
	other := newConn("carol", 4)
	h.Join("b1", a)
	h.Join("b1", a)
	h.Join("b1", b)
	h.Join("b2", other)

	n, err := h.Broadcast("b1", map[string]string{"type": "created"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, c := range []*Conn{a, b} {
		require.Len(t, c.send, 1)
		var frame map[string]string
		require.NoError(t, json.Unmarshal(<-c.send, &frame))
		assert.Equal(t, "created", frame["type"])
	}
	assert.Empty(t, other.send)

	_, err = h.Broadcast("b1", func() {})
	assert.Error(t, err)
}

func TestHub_SlowConnectionIsClosed(t *testing.T) {
	h := NewHub()
	slow := newConn("alice", 1)
	h.Join("b1", slow)

	n, err := h.Broadcast("b1", "first")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.Broadcast("b1", "second")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	select {
	case <-slow.Done():
	default:
		t.Fatal("connection over its buffer must be closed")
	}

	assert.False(t, slow.enqueue([]byte(`"third"`)))
}

func TestHub_Evict(t *testing.T) {
	h := NewHub()
	a := newConn("alice", 4)
	a2 := newConn("alice", 4)
	b := newConn("bob", 4)
	h.Join("b1", a)
	h.Join("b1", a2)
	h.Join("b1", b)
	h.Join("b2", a)

	h.evictUser("b1", "alice")
	assert.Equal(t, 1, h.roomSize("b1"))
	assert.Equal(t, 1, h.roomSize("b2"))

	h.evict("b1")
	assert.Equal(t, 0, h.roomSize("b1"))
	assert.Equal(t, 1, h.roomSize("b2"))
}
