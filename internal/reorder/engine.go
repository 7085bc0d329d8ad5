package reorder

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/internal/task"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/keylock"
)

// Versions counts the ordering changes of each column of a board. A column
// missing from the map is at version 0.
type Versions map[board.ColumnType]int64

// Result is returned by every ordering operation and published as the
// payload of the reordered event.
type Result struct {
	BoardID  string             `json:"boardId"`
	Columns  []board.ColumnType `json:"columns"`
	Tasks    []*task.View       `json:"tasks"`
	Versions Versions           `json:"versions"`
}

// Engine holds the board lock for every ordering write, so order values are
// only ever computed from the state the write replaces.
type Engine struct {
	repo     task.Repository
	guard    board.Authorizer
	eventBus *eventbus.Bus
	locks    *keylock.Locker
	now      func() time.Time

	mu       sync.Mutex
	versions map[string]Versions
}

var _ task.Sequencer = (*Engine)(nil)

func NewEngine(repo task.Repository, guard board.Authorizer, eventBus *eventbus.Bus, locks *keylock.Locker) *Engine {
	return &Engine{
		repo:     repo,
		guard:    guard,
		eventBus: eventBus,
		locks:    locks,
		now:      func() time.Time { return time.Now().UTC() },
		versions: make(map[string]Versions),
	}
}

// Reorder applies a client computed ordering. When expected is non-empty
// each listed column must still be at that version, or the call fails with
// Aborted and writes nothing.
func (e *Engine) Reorder(ctx context.Context, boardID string, items []Item, expected Versions) (*Result, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	if boardID == "" {
		return nil, cerr.InvalidField("boardId", "required", "board id is required")
	}
	unlock := e.locks.Lock(boardID)
	defer unlock()

	b, err := e.guard.Authorize(ctx, userID, boardID, board.RoleMember)
	if err != nil {
		return nil, err
	}
	if err := e.checkVersions(boardID, expected); err != nil {
		return nil, err
	}
	current, err := e.repo.ListByBoard(ctx, boardID, task.Filter{})
	if err != nil {
		return nil, err
	}
	placements, columns, err := Plan(b, current, items, e.now())
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, boardID, userID, columns, placements)
}

// Move places one task at position in column, appending when position is
// nil. Both the source and the destination column are compacted.
func (e *Engine) Move(ctx context.Context, taskID string, column board.ColumnType, position *int) (*Result, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	peek, err := e.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	unlock := e.locks.Lock(peek.BoardID)
	defer unlock()

	b, err := e.guard.Authorize(ctx, userID, peek.BoardID, board.RoleMember)
	if err != nil {
		return nil, err
	}
	current, err := e.repo.ListByBoard(ctx, peek.BoardID, task.Filter{})
	if err != nil {
		return nil, err
	}
	t, ok := index(current)[taskID]
	if !ok {
		return nil, cerr.NewError(cerr.FailedPrecondition, "archived tasks cannot be moved", nil)
	}
	if column == "" {
		column = t.Column
	}

	var lane []string
	for _, other := range current {
		if other.Column == column && other.ID != taskID {
			lane = append(lane, other.ID)
		}
	}
	pos := len(lane)
	if position != nil {
		pos = min(max(*position, 0), len(lane))
	}
	lane = slices.Insert(lane, pos, taskID)
	items := make([]Item, len(lane))
	for i, id := range lane {
		items[i] = Item{TaskID: id, Column: column, Position: i}
	}

	placements, columns, err := Plan(b, current, items, e.now())
	if err != nil {
		return nil, err
	}
	result, err := e.apply(ctx, peek.BoardID, userID, columns, placements)
	if err != nil {
		return nil, err
	}
	if column != t.Column {
		if moved := findView(result.Tasks, taskID); moved != nil {
			e.eventBus.PublishNew(eventbus.TaskUpdated, peek.BoardID, userID, &task.Change{TaskID: taskID, Task: moved})
		}
	}
	return result, nil
}

// Sequence implements task.Sequencer. A failure to compact after fn has
// committed is logged, not returned, since the caller's write stands.
func (e *Engine) Sequence(ctx context.Context, boardID, actorID string, fn func(ctx context.Context) ([]board.ColumnType, error), then func(ctx context.Context)) error {
	unlock := e.locks.Lock(boardID)
	defer unlock()

	columns, err := fn(ctx)
	if err != nil {
		return err
	}
	if len(columns) > 0 {
		if _, err := e.compact(ctx, boardID, actorID, columns); err != nil {
			slog.WarnContext(ctx, "failed to compact columns", "board_id", boardID, "columns", columns, "error", err)
		}
	}
	if then != nil {
		then(ctx)
	}
	return nil
}

// CompactBoard renumbers every column of a board. It bypasses authorization
// and is meant for operators.
func (e *Engine) CompactBoard(ctx context.Context, b *board.Board) (*Result, error) {
	unlock := e.locks.Lock(b.ID)
	defer unlock()
	return e.compact(ctx, b.ID, "", b.ColumnTypes())
}

// CurrentVersions returns the ordering versions of a board for its members.
func (e *Engine) CurrentVersions(ctx context.Context, boardID string) (Versions, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := e.guard.Authorize(ctx, userID, boardID, board.RoleViewer); err != nil {
		return nil, err
	}
	return e.snapshotVersions(boardID), nil
}

func (e *Engine) compact(ctx context.Context, boardID, actorID string, columns []board.ColumnType) (*Result, error) {
	current, err := e.repo.ListByBoard(ctx, boardID, task.Filter{})
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, boardID, actorID, columns, Compact(current, columns, e.now()))
}

// apply writes placements and publishes the resulting state of columns. The
// state is re-read and published even when the write fails part way, so
// clients never keep an ordering the store does not hold.
func (e *Engine) apply(ctx context.Context, boardID, actorID string, columns []board.ColumnType, placements []task.Placement) (*Result, error) {
	var writeErr error
	written := 0
	if len(placements) > 0 {
		written, writeErr = e.repo.BulkUpdatePlacement(ctx, boardID, placements)
		if writeErr == nil && written != len(placements) {
			writeErr = fmt.Errorf("wrote %d of %d placements", written, len(placements))
		}
	}
	e.bump(boardID, columns)

	result, err := e.snapshot(ctx, boardID, columns)
	if err != nil {
		if writeErr != nil {
			return nil, cerr.NewError(cerr.Internal, "reorder was not fully applied; reload the board", writeErr)
		}
		return nil, err
	}
	e.eventBus.PublishNew(eventbus.TasksReordered, boardID, actorID, result)
	if writeErr != nil {
		slog.ErrorContext(ctx, "partial reorder", "board_id", boardID, "written", written, "planned", len(placements), "error", writeErr)
		return nil, cerr.NewError(cerr.Internal, "reorder was not fully applied; reload the board", writeErr)
	}
	return result, nil
}

func (e *Engine) snapshot(ctx context.Context, boardID string, columns []board.ColumnType) (*Result, error) {
	current, err := e.repo.ListByBoard(ctx, boardID, task.Filter{})
	if err != nil {
		return nil, err
	}
	var affected []*task.Task
	for _, t := range current {
		if slices.Contains(columns, t.Column) {
			affected = append(affected, t)
		}
	}
	return &Result{
		BoardID:  boardID,
		Columns:  columns,
		Tasks:    task.NewViews(affected, e.now()),
		Versions: e.snapshotVersions(boardID),
	}, nil
}

func (e *Engine) checkVersions(boardID string, expected Versions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for c, v := range expected {
		if have := e.versions[boardID][c]; have != v {
			return cerr.NewError(cerr.Aborted, fmt.Sprintf("column %s changed (version %d, expected %d); reload and retry", c, have, v), nil)
		}
	}
	return nil
}

func (e *Engine) bump(boardID string, columns []board.ColumnType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.versions[boardID]
	if !ok {
		v = make(Versions)
		e.versions[boardID] = v
	}
	for _, c := range columns {
		v[c]++
	}
}

func (e *Engine) snapshotVersions(boardID string) Versions {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := maps.Clone(e.versions[boardID])
	if out == nil {
		out = Versions{}
	}
	return out
}

// Run drops the versions of deleted boards until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	id, events := e.eventBus.Subscribe(64)
	defer e.eventBus.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type == eventbus.BoardDeleted {
				e.forget(ev.BoardID)
			}
		}
	}
}

func (e *Engine) forget(boardID string) {
	e.mu.Lock()
	delete(e.versions, boardID)
	e.mu.Unlock()
}

func findView(views []*task.View, id string) *task.View {
	for _, v := range views {
		if v.ID == id {
			return v
		}
	}
	return nil
}
