package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	id1, ch1 := b.Subscribe(4)
	_, ch2 := b.Subscribe(4)

	ev := b.PublishNew(TaskCreated, "board-1", "user-1", map[string]string{"id": "t1"})
	require.NotEmpty(t, ev.ID)

	got1 := <-ch1
	got2 := <-ch2
	assert.Same(t, ev, got1)
	assert.Same(t, ev, got2)
	assert.Equal(t, "board-1", got1.BoardID)

	b.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "channel closed after unsubscribe")
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(1)

	b.PublishNew(TaskUpdated, "b", "", nil)
	b.PublishNew(TaskUpdated, "b", "", nil)

	assert.Len(t, ch, 1)
}

func TestBus_PreservesOrder(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(8)
	types := []Type{TaskCreated, TaskUpdated, TasksReordered, TaskDeleted}
	for _, typ := range types {
		b.PublishNew(typ, "b", "", nil)
	}
	for _, want := range types {
		assert.Equal(t, want, (<-ch).Type)
	}
}
