package task

import (
	"cmp"
	"context"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/kazz187/prepboard/internal/board"
)

// Repository persists tasks. Callers run PrepareSave before Create and
// Update.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	// ListByBoard returns the tasks of a board matching f, sorted with Sort.
	ListByBoard(ctx context.Context, boardID string, f Filter) ([]*Task, error)
	// BulkUpdatePlacement writes column, order and the derived status of many
	// tasks in one call. Each placement is keyed by (TaskID, boardID), so a
	// task of another board is never touched. It returns how many tasks were
	// written; on error some placements may already be applied.
	BulkUpdatePlacement(ctx context.Context, boardID string, placements []Placement) (int, error)
	DeleteByBoard(ctx context.Context, boardID string) error
}

// Filter narrows a board's task list. Zero fields match everything.
type Filter struct {
	Archived   bool
	Column     board.ColumnType
	Type       string
	Difficulty Difficulty
	Priority   Priority
	Status     Status
	AssignedTo string
	// case-insensitive substring of title, description, company or a tag
	Search string
}

func (f Filter) Match(t *Task) bool {
	switch {
	case t.Archived != f.Archived,
		f.Column != "" && t.Column != f.Column,
		f.Type != "" && t.Type != f.Type,
		f.Difficulty != "" && t.Difficulty != f.Difficulty,
		f.Priority != "" && t.Priority != f.Priority,
		f.Status != "" && t.Status != f.Status,
		f.AssignedTo != "" && !t.IsAssigned(f.AssignedTo):
		return false
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), q) }
	return contains(t.Title) || contains(t.Description) || contains(t.Company) || slices.ContainsFunc(t.Tags, contains)
}

// Sort orders active tasks by column then order, and archived tasks most
// recently archived first.
func Sort(tasks []*Task, archived bool) {
	if archived {
		slices.SortStableFunc(tasks, func(a, b *Task) int {
			return cmp.Or(
				compareTimePtr(b.ArchivedAt, a.ArchivedAt),
				cmp.Compare(b.ID, a.ID),
			)
		})
		return
	}
	slices.SortStableFunc(tasks, func(a, b *Task) int {
		return cmp.Or(
			cmp.Compare(a.Column, b.Column),
			cmp.Compare(a.Order, b.Order),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

// Placement is the part of a task a reorder rewrites.
type Placement struct {
	TaskID      string
	Column      board.ColumnType
	Order       int
	Status      Status
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// PlacementOf computes the placement of t moved to column at order, with the
// status derived the same way a full save derives it. t is not modified.
func PlacementOf(t *Task, column board.ColumnType, order int, now time.Time) Placement {
	moved := t.Clone()
	moved.Column = column
	moved.Order = order
	moved.PrepareSave(now)
	return Placement{
		TaskID:      t.ID,
		Column:      moved.Column,
		Order:       moved.Order,
		Status:      moved.Status,
		CompletedAt: moved.CompletedAt,
		UpdatedAt:   moved.UpdatedAt,
	}
}

func (p Placement) Apply(t *Task) {
	t.Column = p.Column
	t.Order = p.Order
	t.Status = p.Status
	t.CompletedAt = p.CompletedAt
	t.UpdatedAt = p.UpdatedAt
}

// Sequencer serializes the writes that affect ordering on one board. fn runs
// while the board is held and returns the columns whose order it disturbed;
// the sequencer compacts them, then runs then (when fn succeeded) before
// releasing the board.
type Sequencer interface {
	Sequence(ctx context.Context, boardID, actorID string, fn func(ctx context.Context) ([]board.ColumnType, error), then func(ctx context.Context)) error
}

// BlobStore keeps attachment contents. Save returns the descriptor stored on
// the task.
type BlobStore interface {
	Save(ctx context.Context, boardID, taskID, name string, r io.Reader) (*Attachment, error)
	Delete(ctx context.Context, key string) error
	MaxBytes() int64
}
