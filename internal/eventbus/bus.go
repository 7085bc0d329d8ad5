package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	TaskCreated          Type = "created"
	TaskUpdated          Type = "updated"
	TaskDeleted          Type = "deleted"
	TaskArchived         Type = "archived"
	TaskRestored         Type = "restored"
	TaskCommented        Type = "commented"
	TaskCommentUpdated   Type = "commentUpdated"
	TaskCommentDeleted   Type = "commentDeleted"
	TaskChecklistAdded   Type = "checklistAdded"
	TaskChecklistUpdated Type = "checklistUpdated"
	TaskChecklistDeleted Type = "checklistDeleted"
	TaskTimeLogged       Type = "timeLogged"
	TasksReordered       Type = "reordered"

	BoardUpdated      Type = "boardUpdated"
	BoardDeleted      Type = "boardDeleted"
	MemberJoined      Type = "memberJoined"
	MemberLeft        Type = "memberLeft"
	MemberRoleChanged Type = "memberRoleChanged"
)

// Event is one committed mutation on a board.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	BoardID   string    `json:"boardId"`
	ActorID   string    `json:"actorId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bus fans events out to in-process subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishNew stamps and publishes an event. It returns the event so callers
// can log its id.
func (b *Bus) PublishNew(eventType Type, boardID, actorID string, payload any) *Event {
	event := &Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		BoardID:   boardID,
		ActorID:   actorID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	b.Publish(event)
	return event
}
