// Package reorder keeps the order of tasks within each column of a board
// contiguous. Every write that disturbs an ordering goes through the Engine.
package reorder

import (
	"fmt"
	"slices"
	"time"

	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/task"
	"github.com/kazz187/prepboard/pkg/cerr"
)

// Item places one task in a column. Its order is its index among the items
// of that column in submission order; Position is accepted from clients but
// does not override that index.
type Item struct {
	TaskID   string           `json:"taskId"`
	Column   board.ColumnType `json:"column"`
	Position int              `json:"position"`
}

// Plan computes the placements that realize items on b. current holds the
// board's active tasks sorted by column and order.
//
// Each column named by items, or left by a task in items, is rewritten as
// the items placed into it in submission order, followed by its remaining
// tasks in their current order. Orders become 0..n-1. Only
// tasks whose column or order changes get a placement. The returned columns
// are every column rewritten.
func Plan(b *board.Board, current []*task.Task, items []Item, now time.Time) ([]task.Placement, []board.ColumnType, error) {
	if len(items) == 0 {
		return nil, nil, cerr.InvalidField("tasks", "min_items", "at least one task is required")
	}
	byID := index(current)
	placed := make(map[string]struct{}, len(items))
	var columns []board.ColumnType
	for _, it := range items {
		if it.TaskID == "" {
			return nil, nil, cerr.InvalidField("tasks.taskId", "required", "task id is required")
		}
		if _, dup := placed[it.TaskID]; dup {
			return nil, nil, cerr.InvalidField("tasks.taskId", "unique", fmt.Sprintf("task %s appears more than once", it.TaskID))
		}
		if !it.Column.Valid() || !b.HasColumn(it.Column) {
			return nil, nil, cerr.InvalidField("tasks.column", "in", fmt.Sprintf("column %q does not exist on this board", it.Column))
		}
		if it.Position < 0 {
			return nil, nil, cerr.InvalidField("tasks.position", "gte", "position must not be negative")
		}
		t, ok := byID[it.TaskID]
		if !ok {
			return nil, nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %s not found on this board", it.TaskID), nil)
		}
		placed[it.TaskID] = struct{}{}
		columns = appendUnique(columns, t.Column, it.Column)
	}

	lanes := make(map[board.ColumnType][]*task.Task, len(columns))
	for _, it := range items {
		lanes[it.Column] = append(lanes[it.Column], byID[it.TaskID])
	}
	for _, t := range current {
		if _, ok := placed[t.ID]; ok || !slices.Contains(columns, t.Column) {
			continue
		}
		lanes[t.Column] = append(lanes[t.Column], t)
	}
	return place(columns, lanes, now), columns, nil
}

// Compact renumbers the given columns 0..n-1 keeping their current order.
func Compact(current []*task.Task, columns []board.ColumnType, now time.Time) []task.Placement {
	lanes := make(map[board.ColumnType][]*task.Task, len(columns))
	for _, t := range current {
		if slices.Contains(columns, t.Column) {
			lanes[t.Column] = append(lanes[t.Column], t)
		}
	}
	return place(columns, lanes, now)
}

func place(columns []board.ColumnType, lanes map[board.ColumnType][]*task.Task, now time.Time) []task.Placement {
	var out []task.Placement
	for _, c := range columns {
		for i, t := range lanes[c] {
			if t.Column == c && t.Order == i {
				continue
			}
			out = append(out, task.PlacementOf(t, c, i, now))
		}
	}
	return out
}

func index(tasks []*task.Task) map[string]*task.Task {
	m := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}

func appendUnique(columns []board.ColumnType, cs ...board.ColumnType) []board.ColumnType {
	for _, c := range cs {
		if !slices.Contains(columns, c) {
			columns = append(columns, c)
		}
	}
	return columns
}
