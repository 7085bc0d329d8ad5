package task

import (
	"math"
	"time"
)

// View is a task as clients see it, with the fields derived at read time.
type View struct {
	*Task
	Progress      int  `json:"progress"`
	IsOverdue     bool `json:"isOverdue"`
	TimeRemaining *int `json:"timeRemaining"`
}

func NewView(t *Task, now time.Time) *View {
	return &View{
		Task:          t,
		Progress:      t.Progress(),
		IsOverdue:     t.IsOverdue(now),
		TimeRemaining: t.DaysRemaining(now),
	}
}

func NewViews(tasks []*Task, now time.Time) []*View {
	out := make([]*View, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, NewView(t, now))
	}
	return out
}

// Progress is the rounded percentage of completed checklist items.
func (t *Task) Progress() int {
	if len(t.Checklist) == 0 {
		return 0
	}
	done := 0
	for _, item := range t.Checklist {
		if item.Completed {
			done++
		}
	}
	return int(math.Round(float64(done) * 100 / float64(len(t.Checklist))))
}

func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && now.After(*t.DueDate) && t.Status != StatusCompleted
}

// DaysRemaining rounds up to whole days and goes negative once overdue. It
// is nil when the task has no due date.
func (t *Task) DaysRemaining(now time.Time) *int {
	if t.DueDate == nil {
		return nil
	}
	days := int(math.Ceil(t.DueDate.Sub(now).Hours() / 24))
	return &days
}

// Change is the payload of every task event.
type Change struct {
	TaskID        string         `json:"taskId"`
	Task          *View          `json:"task,omitempty"`
	Comment       *Comment       `json:"comment,omitempty"`
	CommentID     string         `json:"commentId,omitempty"`
	ChecklistItem *ChecklistItem `json:"checklistItem,omitempty"`
	ItemID        string         `json:"itemId,omitempty"`
	TimeLog       *TimeLog       `json:"timeLog,omitempty"`
	Attachment    *Attachment    `json:"attachment,omitempty"`
	// users newly assigned by this change
	Assigned []string `json:"-"`
}
