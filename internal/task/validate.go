package task

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/pkg/cerr"
)

const (
	maxTitleLength = 200
	maxTags        = 20
)

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", cerr.InvalidField("title", "required", "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", cerr.InvalidField("title", "max_len", "title must be at most 200 characters")
	}
	return title, nil
}

func normalizeText(field, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", cerr.InvalidField(field, "required", field+" is required")
	}
	return text, nil
}

// normalizeTags trims, drops empties and de-duplicates case-insensitively,
// keeping the first spelling.
func normalizeTags(tags []string) ([]string, error) {
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.ContainsFunc(out, func(o string) bool { return strings.EqualFold(o, tag) }) {
			continue
		}
		out = append(out, tag)
	}
	if len(out) > maxTags {
		return nil, cerr.InvalidField("tags", "max_items", "a task can have at most 20 tags")
	}
	return out, nil
}

func normalizeLabels(labels []LabelRef) []LabelRef {
	var out []LabelRef
	for _, l := range labels {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" || slices.ContainsFunc(out, func(o LabelRef) bool { return o.Name == l.Name }) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// validateFields checks the board independent fields of t.
func validateFields(t *Task) error {
	if !t.Difficulty.Valid() {
		return cerr.InvalidField("difficulty", "in", "difficulty must be one of Easy, Medium, Hard, Very Hard")
	}
	if !t.Priority.Valid() {
		return cerr.InvalidField("priority", "in", "priority must be one of Low, Medium, High, Critical")
	}
	if t.Status != "" && !t.Status.Valid() {
		return cerr.InvalidField("status", "in", "unknown status")
	}
	if t.EstimatedTime < 0 {
		return cerr.InvalidField("estimatedTime", "gte", "estimated time must not be negative")
	}
	if t.StartDate != nil && t.DueDate != nil && t.DueDate.Before(*t.StartDate) {
		return cerr.InvalidField("dueDate", "after_start", "due date must not be before start date")
	}
	return nil
}

// validateOnBoard checks the fields of t that refer to b.
func validateOnBoard(b *board.Board, t *Task) error {
	if !b.AcceptsTaskType(t.Type) {
		return cerr.InvalidField("type", "in", "task type is not defined on this board")
	}
	if !t.Column.Valid() || !b.HasColumn(t.Column) {
		return cerr.InvalidField("column", "in", "column does not exist on this board")
	}
	return nil
}

// assign replaces the assignees of t. Every assignee must be a member of b.
func assign(b *board.Board, t *Task, userIDs []string, now time.Time) ([]string, error) {
	for _, id := range userIDs {
		if id != "" && b.RoleOf(id) == board.RoleNone {
			return nil, cerr.InvalidField("assignedTo", "member", "assignees must be members of the board")
		}
	}
	return t.Assign(userIDs, now), nil
}
