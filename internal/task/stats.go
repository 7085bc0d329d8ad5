package task

import (
	"time"

	"github.com/kazz187/prepboard/internal/board"
)

type Stats struct {
	Total              int                      `json:"total"`
	ByType             map[string]int           `json:"byType"`
	ByDifficulty       map[Difficulty]int       `json:"byDifficulty"`
	ByPriority         map[Priority]int         `json:"byPriority"`
	ByStatus           map[Status]int           `json:"byStatus"`
	ByColumn           map[board.ColumnType]int `json:"byColumn"`
	Overdue            int                      `json:"overdue"`
	Completed          int                      `json:"completed"`
	InProgress         int                      `json:"inProgress"`
	Blocked            int                      `json:"blocked"`
	TotalTimeSpent     int                      `json:"totalTimeSpent"`
	TotalEstimatedTime int                      `json:"totalEstimatedTime"`
}

// ComputeStats aggregates the given tasks; callers pass the active ones.
func ComputeStats(tasks []*Task, now time.Time) *Stats {
	s := &Stats{
		ByType:       map[string]int{},
		ByDifficulty: map[Difficulty]int{},
		ByPriority:   map[Priority]int{},
		ByStatus:     map[Status]int{},
		ByColumn:     map[board.ColumnType]int{},
	}
	for _, t := range tasks {
		s.Total++
		s.ByType[t.Type]++
		s.ByDifficulty[t.Difficulty]++
		s.ByPriority[t.Priority]++
		s.ByStatus[t.Status]++
		s.ByColumn[t.Column]++
		if t.IsOverdue(now) {
			s.Overdue++
		}
		switch t.Column {
		case board.ColumnDone:
			s.Completed++
		case board.ColumnInProgress:
			s.InProgress++
		case board.ColumnBlocked:
			s.Blocked++
		}
		s.TotalTimeSpent += t.TimeSpent
		s.TotalEstimatedTime += t.EstimatedTime
	}
	return s
}
