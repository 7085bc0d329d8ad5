package task

import (
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// The task owns its comments, checklist items, time logs and attachments.
// Elements are addressed by their own id and only change through the
// methods below.

func newID() string {
	return ulid.Make().String()
}

func (t *Task) AddComment(userID, text string, now time.Time) *Comment {
	t.Comments = append(t.Comments, Comment{ID: newID(), UserID: userID, Text: text, CreatedAt: now})
	return &t.Comments[len(t.Comments)-1]
}

func (t *Task) Comment(id string) (*Comment, bool) {
	for i := range t.Comments {
		if t.Comments[i].ID == id {
			return &t.Comments[i], true
		}
	}
	return nil, false
}

func (t *Task) EditComment(id, text string, now time.Time) (*Comment, bool) {
	c, ok := t.Comment(id)
	if !ok {
		return nil, false
	}
	c.Text = text
	c.UpdatedAt = &now
	return c, true
}

func (t *Task) RemoveComment(id string) bool {
	before := len(t.Comments)
	t.Comments = slices.DeleteFunc(t.Comments, func(c Comment) bool { return c.ID == id })
	return len(t.Comments) != before
}

func (t *Task) AddChecklistItem(text string) *ChecklistItem {
	t.Checklist = append(t.Checklist, ChecklistItem{ID: newID(), Text: text})
	return &t.Checklist[len(t.Checklist)-1]
}

func (t *Task) ChecklistItem(id string) (*ChecklistItem, bool) {
	for i := range t.Checklist {
		if t.Checklist[i].ID == id {
			return &t.Checklist[i], true
		}
	}
	return nil, false
}

// SetChecklistItem sets the completion of an item, or flips it when completed
// is nil. A non-empty text also renames the item.
func (t *Task) SetChecklistItem(id string, completed *bool, text string, now time.Time) (*ChecklistItem, bool) {
	item, ok := t.ChecklistItem(id)
	if !ok {
		return nil, false
	}
	if text != "" {
		item.Text = text
	}
	done := !item.Completed
	if completed != nil {
		done = *completed
	}
	switch {
	case done && !item.Completed:
		item.Completed = true
		item.CompletedAt = &now
	case !done:
		item.Completed = false
		item.CompletedAt = nil
	}
	return item, true
}

func (t *Task) RemoveChecklistItem(id string) bool {
	before := len(t.Checklist)
	t.Checklist = slices.DeleteFunc(t.Checklist, func(c ChecklistItem) bool { return c.ID == id })
	return len(t.Checklist) != before
}

// LogTime appends to the time log and adds minutes to TimeSpent.
func (t *Task) LogTime(userID string, minutes int, description string, now time.Time) *TimeLog {
	t.TimeLogs = append(t.TimeLogs, TimeLog{
		ID:          newID(),
		UserID:      userID,
		Minutes:     minutes,
		Description: description,
		LoggedAt:    now,
	})
	t.TimeSpent += minutes
	return &t.TimeLogs[len(t.TimeLogs)-1]
}

func (t *Task) AddAttachment(a Attachment) *Attachment {
	t.Attachments = append(t.Attachments, a)
	return &t.Attachments[len(t.Attachments)-1]
}

// RemoveAttachment detaches the attachment and returns it so the caller can
// delete the blob.
func (t *Task) RemoveAttachment(id string) (*Attachment, bool) {
	i := slices.IndexFunc(t.Attachments, func(a Attachment) bool { return a.ID == id })
	if i < 0 {
		return nil, false
	}
	removed := t.Attachments[i]
	t.Attachments = slices.Delete(t.Attachments, i, i+1)
	return &removed, true
}
