package board

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// GeneralTaskType is always accepted, even when a board's taxonomy lacks it.
const GeneralTaskType = "General"

func newID() string {
	return ulid.Make().String()
}

// NewInviteCode returns a fresh random invite code. Uniqueness is enforced by
// the repository; callers retry on AlreadyExists.
func NewInviteCode() string {
	return "invite-" + strings.ToLower(ulid.Make().String())
}

func DefaultColumns() []Column {
	cols := []Column{
		{Title: "Backlog", Type: ColumnBacklog, Color: "#94A3B8"},
		{Title: "Ready", Type: ColumnTodo, Color: "#3B82F6"},
		{Title: "In Progress", Type: ColumnInProgress, Color: "#F59E0B", WIPLimit: 5},
		{Title: "Code Review", Type: ColumnReview, Color: "#8B5CF6", WIPLimit: 3},
		{Title: "Testing", Type: ColumnReview, Color: "#EC4899", WIPLimit: 3},
		{Title: "Blocked", Type: ColumnBlocked, Color: "#EF4444"},
		{Title: "Done", Type: ColumnDone, Color: "#10B981"},
	}
	for i := range cols {
		cols[i].ID = newID()
		cols[i].Order = i
	}
	return cols
}

var defaultTaskTypes = []struct{ name, color, icon string }{
	{"DSA Problem", "#3B82F6", "🧠"},
	{"HR Question", "#8B5CF6", "👥"},
	{"System Design", "#10B981", "🏗️"},
	{"Coding Challenge", "#F59E0B", "💻"},
	{"Behavioral", "#EF4444", "💬"},
	{"Project", "#EC4899", "📁"},
	{"Research", "#14B8A6", "🔍"},
	{"Revision", "#6366F1", "📚"},
	{"Mock Interview", "#F97316", "🎤"},
	{"Algorithm", "#8B5CF6", "⚡"},
	{"Database", "#10B981", "🗄️"},
	{"API Design", "#F59E0B", "🔌"},
	{"Security", "#EF4444", "🔒"},
	{"Testing", "#8B5CF6", "🧪"},
	{"Deployment", "#10B981", "🚀"},
	{"Documentation", "#6B7280", "📄"},
	{"Bug Fix", "#DC2626", "🐛"},
	{"Code Review", "#3B82F6", "👁️"},
	{"Refactoring", "#8B5CF6", "♻️"},
	{"Performance", "#F59E0B", "⚡"},
}

// generalOrder keeps General last however many custom types are added.
const generalOrder = 100

func DefaultTaskTypes(now time.Time) []TaskType {
	types := make([]TaskType, 0, len(defaultTaskTypes)+1)
	for i, d := range defaultTaskTypes {
		types = append(types, TaskType{ID: newID(), Name: d.name, Color: d.color, Icon: d.icon, Order: i, Active: true, CreatedAt: now})
	}
	return append(types, TaskType{ID: newID(), Name: GeneralTaskType, Color: "#6B7280", Icon: "📝", Order: generalOrder, Active: true, CreatedAt: now})
}

var defaultLabels = []struct{ name, color string }{
	{"Bug", "#EF4444"},
	{"Feature", "#10B981"},
	{"Enhancement", "#3B82F6"},
	{"Documentation", "#8B5CF6"},
	{"Question", "#F59E0B"},
	{"Urgent", "#DC2626"},
	{"High Priority", "#F59E0B"},
	{"Low Priority", "#6B7280"},
	{"In Progress", "#3B82F6"},
	{"Ready for Review", "#8B5CF6"},
}

func DefaultLabels() []Label {
	labels := make([]Label, 0, len(defaultLabels))
	for _, d := range defaultLabels {
		labels = append(labels, Label{ID: newID(), Name: d.name, Color: d.color, Active: true})
	}
	return labels
}

func DefaultSettings() Settings {
	return Settings{
		AllowComments:    true,
		AllowAttachments: true,
		EnableDueDates:   true,
		EnableLabels:     true,
		DefaultView:      ViewBoard,
	}
}

// ApplyDefaults fills each empty list with its defaults. Non-empty lists are
// never touched.
func (b *Board) ApplyDefaults(now time.Time) {
	if len(b.Columns) == 0 {
		b.Columns = DefaultColumns()
	}
	if len(b.TaskTypes) == 0 {
		b.TaskTypes = DefaultTaskTypes(now)
	}
	if len(b.Labels) == 0 {
		b.Labels = DefaultLabels()
	}
	if b.Settings.DefaultView == "" {
		b.Settings.DefaultView = ViewBoard
	}
}
