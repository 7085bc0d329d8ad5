package board_test

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/prepboard/internal/access"
	"github.com/kazz187/prepboard/internal/attachment"
	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/board/repositoryimpl"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/internal/task"
	taskrepo "github.com/kazz187/prepboard/internal/task/repositoryimpl"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/keylock"
	"github.com/kazz187/prepboard/pkg/storage"
)

type recordingPurger struct {
	purged []string
}

func (p *recordingPurger) PurgeBoard(_ context.Context, boardID string) error {
	p.purged = append(p.purged, boardID)
	return nil
}

func (p *recordingPurger) ColumnsInUse(context.Context, string) ([]board.ColumnType, error) {
	return nil, nil
}

type fixture struct {
	server *board.Server
	repo   board.Repository
	purger *recordingPurger
	events <-chan *eventbus.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := repositoryimpl.NewYAMLRepository(s)
	bus := eventbus.New()
	_, events := bus.Subscribe(64)
	purger := &recordingPurger{}
	return &fixture{
		server: board.NewServer(repo, access.NewGuard(repo), purger, bus, keylock.New()),
		repo:   repo,
		purger: purger,
		events: events,
	}
}

func as(userID string) context.Context {
	return auth.ContextWithUserID(context.Background(), userID)
}

func (f *fixture) addMember(t *testing.T, boardID, userID string, role board.Role) {
	t.Helper()
	b, err := f.repo.Get(context.Background(), boardID)
	require.NoError(t, err)
	b.AddMember(userID, role, b.CreatedAt)
	require.NoError(t, f.repo.Update(context.Background(), b))
}

func TestCreateBoard_AppliesDefaults(t *testing.T) {
	f := newFixture(t)

	b, err := f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{Title: "  Prep  "})
	require.NoError(t, err)
	assert.Equal(t, "Prep", b.Title)
	assert.Equal(t, "alice", b.OwnerID)
	require.Len(t, b.Members, 1)
	assert.Equal(t, board.RoleAdmin, b.Members[0].Role)
	assert.True(t, strings.HasPrefix(b.InviteCode, "invite-"))

	require.Len(t, b.Columns, 7)
	var done []board.Column
	for _, c := range b.Columns {
		if c.Title == "Done" {
			done = append(done, c)
		}
	}
	require.Len(t, done, 1)
	assert.Equal(t, board.ColumnDone, done[0].Type)
	assert.True(t, b.Settings.AllowComments)

	stored, err := f.repo.GetByInviteCode(context.Background(), b.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)
}

func TestCreateBoard_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{Title: "   "})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{Title: strings.Repeat("x", 101)})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{
		Title:   "ok",
		Columns: []board.Column{{Title: "Weird", Type: "sideways"}},
	})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = f.server.CreateBoard(context.Background(), &board.CreateBoardRequest{Title: "ok"})
	assert.True(t, cerr.IsCode(err, cerr.Unauthenticated))
}

func TestCreateBoard_KeepsSuppliedColumns(t *testing.T) {
	f := newFixture(t)
	b, err := f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{
		Title:   "Custom",
		Columns: []board.Column{{Title: "Todo", Type: board.ColumnTodo}, {Title: "Done", Type: board.ColumnDone}},
	})
	require.NoError(t, err)
	require.Len(t, b.Columns, 2)
	assert.Equal(t, 1, b.Columns[1].Order)
	assert.Len(t, b.TaskTypes, 21)
}

func TestUpdateBoard_AdminOnly(t *testing.T) {
	f := newFixture(t)
	b, err := f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{Title: "Prep"})
	require.NoError(t, err)
	f.addMember(t, b.ID, "bob", board.RoleMember)

	title := "Renamed"
	_, err = f.server.UpdateBoard(as("bob"), b.ID, &board.UpdateBoardRequest{Title: &title})
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))

	_, err = f.server.UpdateBoard(as("mallory"), b.ID, &board.UpdateBoardRequest{Title: &title})
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))

	updated, err := f.server.UpdateBoard(as("alice"), b.ID, &board.UpdateBoardRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	ev := <-f.events
	assert.Equal(t, eventbus.BoardUpdated, ev.Type)
	assert.Equal(t, b.ID, ev.BoardID)

	_, err = f.server.UpdateBoard(as("alice"), b.ID, &board.UpdateBoardRequest{Columns: []board.Column{}})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestUpdateBoard_KeepsColumnsInUse(t *testing.T) {
	tests := []struct {
		name   string
		remove []board.ColumnType
		code   cerr.Code
	}{
		{"column with an active task", []board.ColumnType{board.ColumnBlocked}, cerr.FailedPrecondition},
		{"column with an archived task", []board.ColumnType{board.ColumnReview}, cerr.FailedPrecondition},
		{"both at once", []board.ColumnType{board.ColumnBlocked, board.ColumnReview}, cerr.FailedPrecondition},
		{"empty column", []board.ColumnType{board.ColumnBacklog}, cerr.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, err := storage.NewLocalStorage(t.TempDir())
			require.NoError(t, err)
			repo := repositoryimpl.NewYAMLRepository(s)
			tasks := taskrepo.NewYAMLRepository(s)
			bus := eventbus.New()
			_, events := bus.Subscribe(16)
			server := board.NewServer(repo, access.NewGuard(repo), task.NewPurger(tasks, attachment.NewStore(s, 1<<20)), bus, keylock.New())

			b, err := server.CreateBoard(as("alice"), &board.CreateBoardRequest{Title: "Prep"})
			require.NoError(t, err)
			now := time.Now().UTC()
			for _, tk := range []*task.Task{
				{ID: "stuck", BoardID: b.ID, Title: "Waiting on referral", Column: board.ColumnBlocked},
				{ID: "old", BoardID: b.ID, Title: "Mock with Sam", Column: board.ColumnReview, Archived: true, ArchivedAt: &now},
			} {
				tk.Type = board.GeneralTaskType
				tk.Difficulty = task.DifficultyMedium
				tk.Priority = task.PriorityMedium
				tk.CreatedAt = now
				tk.PrepareSave(now)
				require.NoError(t, tasks.Create(ctx, tk))
			}
			before := b.ColumnTypes()

			columns := slices.DeleteFunc(slices.Clone(b.Columns), func(c board.Column) bool {
				return slices.Contains(tt.remove, c.Type)
			})
			updated, err := server.UpdateBoard(as("alice"), b.ID, &board.UpdateBoardRequest{Columns: columns})

			stored, getErr := repo.Get(ctx, b.ID)
			require.NoError(t, getErr)
			if tt.code != cerr.OK {
				assert.True(t, cerr.IsCode(err, tt.code), "got %v", err)
				assert.Equal(t, before, stored.ColumnTypes())
				assert.Empty(t, events)
				return
			}
			require.NoError(t, err)
			for _, c := range tt.remove {
				assert.False(t, updated.HasColumn(c))
				assert.False(t, stored.HasColumn(c))
			}
			assert.Equal(t, eventbus.BoardUpdated, (<-events).Type)
		})
	}
}

func TestDeleteBoard_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	b, err := f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{Title: "Prep"})
	require.NoError(t, err)
	f.addMember(t, b.ID, "bob", board.RoleAdmin)

	err = f.server.DeleteBoard(as("bob"), b.ID)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))
	assert.Empty(t, f.purger.purged)

	require.NoError(t, f.server.DeleteBoard(as("alice"), b.ID))
	assert.Equal(t, []string{b.ID}, f.purger.purged)

	_, err = f.repo.Get(context.Background(), b.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	err = f.server.DeleteBoard(as("alice"), b.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestArchiveRestoreBoard(t *testing.T) {
	f := newFixture(t)
	b, err := f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{Title: "Prep"})
	require.NoError(t, err)

	archived, err := f.server.ArchiveBoard(as("alice"), b.ID)
	require.NoError(t, err)
	assert.True(t, archived.Archived)
	require.NotNil(t, archived.ArchivedAt)

	active, err := f.server.ListBoards(as("alice"), false)
	require.NoError(t, err)
	assert.Empty(t, active)
	hidden, err := f.server.ListBoards(as("alice"), true)
	require.NoError(t, err)
	assert.Len(t, hidden, 1)

	restored, err := f.server.RestoreBoard(as("alice"), b.ID)
	require.NoError(t, err)
	assert.False(t, restored.Archived)
	assert.Nil(t, restored.ArchivedAt)
}

func TestTaskTypes(t *testing.T) {
	f := newFixture(t)
	b, err := f.server.CreateBoard(as("alice"), &board.CreateBoardRequest{Title: "Prep"})
	require.NoError(t, err)
	f.addMember(t, b.ID, "bob", board.RoleMember)

	name := "Take-home"
	_, err = f.server.AddTaskType(as("bob"), b.ID, &board.TaskTypeRequest{Name: &name})
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))

	added, err := f.server.AddTaskType(as("alice"), b.ID, &board.TaskTypeRequest{Name: &name})
	require.NoError(t, err)
	assert.True(t, added.Active)
	assert.Equal(t, 20, added.Order)

	_, err = f.server.AddTaskType(as("alice"), b.ID, &board.TaskTypeRequest{Name: &name})
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	dup := "DSA Problem"
	_, err = f.server.UpdateTaskType(as("alice"), b.ID, added.ID, &board.TaskTypeRequest{Name: &dup})
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	require.NoError(t, f.server.DeactivateTaskType(as("alice"), b.ID, added.ID))
	types, err := f.server.ListTaskTypes(as("bob"), b.ID)
	require.NoError(t, err)
	require.Len(t, types, 22)
	for _, tt := range types {
		if tt.ID == added.ID {
			assert.False(t, tt.Active)
		}
	}
	assert.Equal(t, board.GeneralTaskType, types[len(types)-1].Name)

	err = f.server.DeactivateTaskType(as("alice"), b.ID, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
