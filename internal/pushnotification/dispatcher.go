package pushnotification

import (
	"context"
	"fmt"
	"slices"

	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/internal/task"
)

// Dispatcher turns task events into notifications: newly assigned users hear
// about their assignment, the creator and assignees hear about comments. The
// user who caused the event is never notified.
type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{eventBus: eventBus, sender: sender}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *eventbus.Event) {
	change, ok := event.Payload.(*task.Change)
	if !ok || change.Task == nil {
		return
	}
	recipients, payload := notificationFor(event, change)
	recipients = slices.DeleteFunc(recipients, func(id string) bool { return id == event.ActorID })
	if len(recipients) == 0 {
		return
	}
	d.sender.SendToUsers(ctx, recipients, payload)
}

func notificationFor(event *eventbus.Event, change *task.Change) ([]string, *NotificationPayload) {
	t := change.Task
	url := fmt.Sprintf("/boards/%s?task=%s", t.BoardID, t.ID)
	switch event.Type {
	case eventbus.TaskCreated, eventbus.TaskUpdated:
		return slices.Clone(change.Assigned), &NotificationPayload{
			Title: "You were assigned a task",
			Body:  t.Title,
			URL:   url,
			Tag:   "assign-" + t.ID,
		}
	case eventbus.TaskCommented:
		body := t.Title
		if change.Comment != nil {
			body = fmt.Sprintf("%s: %s", t.Title, change.Comment.Text)
		}
		return t.Watchers(), &NotificationPayload{
			Title: "New comment",
			Body:  body,
			URL:   url,
			Tag:   "comment-" + t.ID,
		}
	}
	return nil, nil
}
