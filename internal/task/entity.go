package task

import (
	"slices"
	"time"

	"github.com/kazz187/prepboard/internal/board"
)

type Difficulty string

const (
	DifficultyEasy     Difficulty = "Easy"
	DifficultyMedium   Difficulty = "Medium"
	DifficultyHard     Difficulty = "Hard"
	DifficultyVeryHard Difficulty = "Very Hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyVeryHard:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusInReview   Status = "In Review"
	StatusBlocked    Status = "Blocked"
	StatusCompleted  Status = "Completed"
	StatusOnHold     Status = "On Hold"
	StatusCancelled  Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusInReview, StatusBlocked, StatusCompleted, StatusOnHold, StatusCancelled:
		return true
	}
	return false
}

type Assignment struct {
	UserID     string    `yaml:"user_id" json:"user" bson:"user"`
	AssignedAt time.Time `yaml:"assigned_at" json:"assignedAt" bson:"assignedAt"`
}

type Attachment struct {
	ID         string    `yaml:"id" json:"id" bson:"id"`
	Name       string    `yaml:"name" json:"name" bson:"name"`
	URL        string    `yaml:"url" json:"url" bson:"url"`
	Key        string    `yaml:"key" json:"-" bson:"key"`
	Type       string    `yaml:"type" json:"type" bson:"type"`
	Size       int64     `yaml:"size" json:"size" bson:"size"`
	UploadedBy string    `yaml:"uploaded_by" json:"uploadedBy" bson:"uploadedBy"`
	UploadedAt time.Time `yaml:"uploaded_at" json:"uploadedAt" bson:"uploadedAt"`
}

type Comment struct {
	ID        string     `yaml:"id" json:"id" bson:"id"`
	UserID    string     `yaml:"user_id" json:"user" bson:"user"`
	Text      string     `yaml:"text" json:"text" bson:"text"`
	CreatedAt time.Time  `yaml:"created_at" json:"createdAt" bson:"createdAt"`
	UpdatedAt *time.Time `yaml:"updated_at,omitempty" json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

type ChecklistItem struct {
	ID          string     `yaml:"id" json:"id" bson:"id"`
	Text        string     `yaml:"text" json:"text" bson:"text"`
	Completed   bool       `yaml:"completed" json:"completed" bson:"completed"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

type TimeLog struct {
	ID          string    `yaml:"id" json:"id" bson:"id"`
	UserID      string    `yaml:"user_id" json:"user" bson:"user"`
	Minutes     int       `yaml:"minutes" json:"minutes" bson:"minutes"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty" bson:"description,omitempty"`
	LoggedAt    time.Time `yaml:"logged_at" json:"loggedAt" bson:"loggedAt"`
}

type LabelRef struct {
	Name  string `yaml:"name" json:"name" bson:"name"`
	Color string `yaml:"color" json:"color" bson:"color"`
}

type Task struct {
	ID            string           `yaml:"id" json:"id" bson:"_id"`
	BoardID       string           `yaml:"board_id" json:"board" bson:"board"`
	Title         string           `yaml:"title" json:"title" bson:"title"`
	Description   string           `yaml:"description" json:"description" bson:"description"`
	Type          string           `yaml:"type" json:"type" bson:"type"`
	Difficulty    Difficulty       `yaml:"difficulty" json:"difficulty" bson:"difficulty"`
	Priority      Priority         `yaml:"priority" json:"priority" bson:"priority"`
	Company       string           `yaml:"company,omitempty" json:"company" bson:"company"`
	Tags          []string         `yaml:"tags,omitempty" json:"tags" bson:"tags"`
	Labels        []LabelRef       `yaml:"labels,omitempty" json:"labels" bson:"labels"`
	Column        board.ColumnType `yaml:"column" json:"column" bson:"column"`
	Order         int              `yaml:"order" json:"order" bson:"order"`
	CreatedBy     string           `yaml:"created_by" json:"createdBy" bson:"createdBy"`
	AssignedTo    []Assignment     `yaml:"assigned_to,omitempty" json:"assignedTo" bson:"assignedTo"`
	DueDate       *time.Time       `yaml:"due_date,omitempty" json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	StartDate     *time.Time       `yaml:"start_date,omitempty" json:"startDate,omitempty" bson:"startDate,omitempty"`
	EstimatedTime int              `yaml:"estimated_time" json:"estimatedTime" bson:"estimatedTime"`
	TimeSpent     int              `yaml:"time_spent" json:"timeSpent" bson:"timeSpent"`
	Attachments   []Attachment     `yaml:"attachments,omitempty" json:"attachments" bson:"attachments"`
	Comments      []Comment        `yaml:"comments,omitempty" json:"comments" bson:"comments"`
	Checklist     []ChecklistItem  `yaml:"checklist,omitempty" json:"checklist" bson:"checklist"`
	TimeLogs      []TimeLog        `yaml:"time_logs,omitempty" json:"timeLogs" bson:"timeLogs"`
	Status        Status           `yaml:"status" json:"status" bson:"status"`
	Archived      bool             `yaml:"archived" json:"isArchived" bson:"isArchived"`
	ArchivedAt    *time.Time       `yaml:"archived_at,omitempty" json:"archivedAt,omitempty" bson:"archivedAt,omitempty"`
	CompletedAt   *time.Time       `yaml:"completed_at,omitempty" json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CreatedAt     time.Time        `yaml:"created_at" json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time        `yaml:"updated_at" json:"updatedAt" bson:"updatedAt"`
}

// PrepareSave stamps UpdatedAt and derives Status from Column. Repositories
// call it on every write, so a caller supplied status never survives a move
// into done, blocked or inprogress.
func (t *Task) PrepareSave(now time.Time) {
	t.UpdatedAt = now
	switch t.Column {
	case board.ColumnDone:
		t.Status = StatusCompleted
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
		return
	case board.ColumnBlocked:
		t.Status = StatusBlocked
	case board.ColumnInProgress:
		t.Status = StatusInProgress
	default:
		// leftover from a previous column
		if t.Status == "" || t.Status == StatusCompleted || t.Status == StatusBlocked || t.Status == StatusInProgress {
			t.Status = restingStatus(t.Column)
		}
	}
	t.CompletedAt = nil
}

func restingStatus(c board.ColumnType) Status {
	if c == board.ColumnReview {
		return StatusInReview
	}
	return StatusNotStarted
}

func (t *Task) IsAssigned(userID string) bool {
	return slices.ContainsFunc(t.AssignedTo, func(a Assignment) bool { return a.UserID == userID })
}

// Assign replaces the assignee list, keeping the original assignment time of
// users who stay assigned. It returns the users that are newly assigned.
func (t *Task) Assign(userIDs []string, now time.Time) []string {
	var (
		next  []Assignment
		added []string
	)
	for _, id := range userIDs {
		if id == "" || slices.ContainsFunc(next, func(a Assignment) bool { return a.UserID == id }) {
			continue
		}
		if i := slices.IndexFunc(t.AssignedTo, func(a Assignment) bool { return a.UserID == id }); i >= 0 {
			next = append(next, t.AssignedTo[i])
			continue
		}
		next = append(next, Assignment{UserID: id, AssignedAt: now})
		added = append(added, id)
	}
	t.AssignedTo = next
	return added
}

// Watchers are the users interested in activity on the task.
func (t *Task) Watchers() []string {
	out := []string{t.CreatedBy}
	for _, a := range t.AssignedTo {
		if !slices.Contains(out, a.UserID) {
			out = append(out, a.UserID)
		}
	}
	return out
}

func (t *Task) Clone() *Task {
	c := *t
	c.Tags = slices.Clone(t.Tags)
	c.Labels = slices.Clone(t.Labels)
	c.AssignedTo = slices.Clone(t.AssignedTo)
	c.Attachments = slices.Clone(t.Attachments)
	c.Comments = slices.Clone(t.Comments)
	c.Checklist = slices.Clone(t.Checklist)
	c.TimeLogs = slices.Clone(t.TimeLogs)
	return &c
}
