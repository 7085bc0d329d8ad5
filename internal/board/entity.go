package board

import (
	"slices"
	"time"
)

// ColumnType is the semantic kind of a column. Tasks reference columns by
// type, so two columns sharing a type share one ordered task list.
type ColumnType string

const (
	ColumnBacklog    ColumnType = "backlog"
	ColumnTodo       ColumnType = "todo"
	ColumnInProgress ColumnType = "inprogress"
	ColumnReview     ColumnType = "review"
	ColumnBlocked    ColumnType = "blocked"
	ColumnDone       ColumnType = "done"
)

var columnTypes = []ColumnType{ColumnBacklog, ColumnTodo, ColumnInProgress, ColumnReview, ColumnBlocked, ColumnDone}

func (t ColumnType) Valid() bool {
	return slices.Contains(columnTypes, t)
}

type Column struct {
	ID       string     `yaml:"id" json:"id" bson:"id"`
	Title    string     `yaml:"title" json:"title" bson:"title"`
	Type     ColumnType `yaml:"type" json:"type" bson:"type"`
	Order    int        `yaml:"order" json:"order" bson:"order"`
	Color    string     `yaml:"color,omitempty" json:"color,omitempty" bson:"color,omitempty"`
	WIPLimit int        `yaml:"wip_limit,omitempty" json:"wipLimit,omitempty" bson:"wipLimit,omitempty"`
}

type Member struct {
	UserID   string    `yaml:"user_id" json:"user" bson:"user"`
	Role     Role      `yaml:"role" json:"role" bson:"role"`
	JoinedAt time.Time `yaml:"joined_at" json:"joinedAt" bson:"joinedAt"`
}

type TaskType struct {
	ID          string    `yaml:"id" json:"id" bson:"id"`
	Name        string    `yaml:"name" json:"name" bson:"name"`
	Color       string    `yaml:"color" json:"color" bson:"color"`
	Icon        string    `yaml:"icon" json:"icon" bson:"icon"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty" bson:"description,omitempty"`
	Order       int       `yaml:"order" json:"order" bson:"order"`
	Active      bool      `yaml:"active" json:"isActive" bson:"isActive"`
	CreatedAt   time.Time `yaml:"created_at" json:"createdAt" bson:"createdAt"`
}

type Label struct {
	ID     string `yaml:"id" json:"id" bson:"id"`
	Name   string `yaml:"name" json:"name" bson:"name"`
	Color  string `yaml:"color" json:"color" bson:"color"`
	Active bool   `yaml:"active" json:"isActive" bson:"isActive"`
}

type View string

const (
	ViewBoard    View = "board"
	ViewList     View = "list"
	ViewCalendar View = "calendar"
	ViewTimeline View = "timeline"
)

func (v View) Valid() bool {
	switch v {
	case ViewBoard, ViewList, ViewCalendar, ViewTimeline:
		return true
	}
	return false
}

type Settings struct {
	AllowComments      bool `yaml:"allow_comments" json:"allowComments" bson:"allowComments"`
	AllowAttachments   bool `yaml:"allow_attachments" json:"allowAttachments" bson:"allowAttachments"`
	AllowTimeTracking  bool `yaml:"allow_time_tracking" json:"allowTimeTracking" bson:"allowTimeTracking"`
	EnableDueDates     bool `yaml:"enable_due_dates" json:"enableDueDates" bson:"enableDueDates"`
	EnableLabels       bool `yaml:"enable_labels" json:"enableLabels" bson:"enableLabels"`
	EnableChecklists   bool `yaml:"enable_checklists" json:"enableChecklists" bson:"enableChecklists"`
	EnableVoting       bool `yaml:"enable_voting" json:"enableVoting" bson:"enableVoting"`
	EnableCustomFields bool `yaml:"enable_custom_fields" json:"enableCustomFields" bson:"enableCustomFields"`
	DefaultView        View `yaml:"default_view" json:"defaultView" bson:"defaultView"`
	CardCover          bool `yaml:"card_cover" json:"cardCover" bson:"cardCover"`
}

type Board struct {
	ID          string     `yaml:"id" json:"id" bson:"_id"`
	Title       string     `yaml:"title" json:"title" bson:"title"`
	Description string     `yaml:"description" json:"description" bson:"description"`
	OwnerID     string     `yaml:"owner_id" json:"owner" bson:"owner"`
	Members     []Member   `yaml:"members" json:"members" bson:"members"`
	InviteCode  string     `yaml:"invite_code" json:"inviteLink" bson:"inviteLink"`
	Columns     []Column   `yaml:"columns" json:"columns" bson:"columns"`
	TaskTypes   []TaskType `yaml:"task_types" json:"taskTypes" bson:"taskTypes"`
	Labels      []Label    `yaml:"labels" json:"labels" bson:"labels"`
	Settings    Settings   `yaml:"settings" json:"settings" bson:"settings"`
	Archived    bool       `yaml:"archived" json:"isArchived" bson:"isArchived"`
	ArchivedAt  *time.Time `yaml:"archived_at,omitempty" json:"archivedAt,omitempty" bson:"archivedAt,omitempty"`
	CreatedAt   time.Time  `yaml:"created_at" json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `yaml:"updated_at" json:"updatedAt" bson:"updatedAt"`
}

func (b *Board) Member(userID string) (*Member, bool) {
	for i := range b.Members {
		if b.Members[i].UserID == userID {
			return &b.Members[i], true
		}
	}
	return nil, false
}

// RoleOf returns RoleNone for non-members.
func (b *Board) RoleOf(userID string) Role {
	if m, ok := b.Member(userID); ok {
		return m.Role
	}
	return RoleNone
}

func (b *Board) IsOwner(userID string) bool {
	return b.OwnerID != "" && b.OwnerID == userID
}

// AddMember appends userID with role. It reports false when the user is
// already a member, leaving the board untouched.
func (b *Board) AddMember(userID string, role Role, now time.Time) bool {
	if _, ok := b.Member(userID); ok {
		return false
	}
	b.Members = append(b.Members, Member{UserID: userID, Role: role, JoinedAt: now})
	return true
}

func (b *Board) RemoveMember(userID string) bool {
	before := len(b.Members)
	b.Members = slices.DeleteFunc(b.Members, func(m Member) bool { return m.UserID == userID })
	return len(b.Members) != before
}

func (b *Board) HasColumn(t ColumnType) bool {
	return slices.ContainsFunc(b.Columns, func(c Column) bool { return c.Type == t })
}

// ColumnTypes returns the distinct column types in display order.
func (b *Board) ColumnTypes() []ColumnType {
	cols := slices.Clone(b.Columns)
	slices.SortStableFunc(cols, func(a, c Column) int { return a.Order - c.Order })
	var out []ColumnType
	for _, c := range cols {
		if !slices.Contains(out, c.Type) {
			out = append(out, c.Type)
		}
	}
	return out
}

func (b *Board) TaskType(id string) (*TaskType, bool) {
	for i := range b.TaskTypes {
		if b.TaskTypes[i].ID == id {
			return &b.TaskTypes[i], true
		}
	}
	return nil, false
}

func (b *Board) TaskTypeByName(name string) (*TaskType, bool) {
	for i := range b.TaskTypes {
		if b.TaskTypes[i].Name == name {
			return &b.TaskTypes[i], true
		}
	}
	return nil, false
}

// AcceptsTaskType reports whether a task of the named type may be created or
// retyped on this board.
func (b *Board) AcceptsTaskType(name string) bool {
	if name == GeneralTaskType {
		return true
	}
	tt, ok := b.TaskTypeByName(name)
	return ok && tt.Active
}

// Clone returns a deep copy.
func (b *Board) Clone() *Board {
	c := *b
	c.Members = slices.Clone(b.Members)
	c.Columns = slices.Clone(b.Columns)
	c.TaskTypes = slices.Clone(b.TaskTypes)
	c.Labels = slices.Clone(b.Labels)
	if b.ArchivedAt != nil {
		t := *b.ArchivedAt
		c.ArchivedAt = &t
	}
	return &c
}
