package membership

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/prepboard/internal/access"
	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/board/repositoryimpl"
	"github.com/kazz187/prepboard/internal/eventbus"
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

type fixture struct {
	server *Server
	repo   board.Repository
	purger *recordingPurger
	events <-chan *eventbus.Event
}

func newFixture(t *testing.T, repo board.Repository) *fixture {
	t.Helper()
	if repo == nil {
		s, err := storage.NewLocalStorage(t.TempDir())
		require.NoError(t, err)
		repo = repositoryimpl.NewYAMLRepository(s)
	}
	bus := eventbus.New()
	_, events := bus.Subscribe(256)
	purger := &recordingPurger{}
	return &fixture{
		server: NewServer(repo, access.NewGuard(repo), purger, bus, keylock.New()),
		repo:   repo,
		purger: purger,
		events: events,
	}
}

func as(userID string) context.Context {
	return auth.ContextWithUserID(context.Background(), userID)
}

// seedBoard stores a board owned by owner with the given extra members.
func (f *fixture) seedBoard(t *testing.T, owner string, members map[string]board.Role) *board.Board {
	t.Helper()
	now := time.Now().UTC()
	b := &board.Board{ID: "b-" + owner, Title: "prep", OwnerID: owner, CreatedAt: now}
	b.AddMember(owner, board.RoleAdmin, now)
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		if role, ok := members[id]; ok {
			b.AddMember(id, role, now)
		}
	}
	b.ApplyDefaults(now)
	require.NoError(t, board.CreateWithInvite(context.Background(), f.repo, b))
	return b
}

func (f *fixture) nextEvent(t *testing.T) *eventbus.Event {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return nil
	}
}

func TestJoinByInvite(t *testing.T) {
	f := newFixture(t, nil)
	b := f.seedBoard(t, "owner", nil)

	joined, err := f.server.JoinByInvite(as("u1"), b.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, board.RoleMember, joined.RoleOf("u1"))
	ev := f.nextEvent(t)
	assert.Equal(t, eventbus.MemberJoined, ev.Type)

	_, err = f.server.JoinByInvite(as("u1"), b.InviteCode)
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	_, err = f.server.JoinByInvite(as("u2"), "invite-unknown")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	stored, err := f.repo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Members, 2)
}

func TestCreateInvite(t *testing.T) {
	f := newFixture(t, nil)
	b := f.seedBoard(t, "owner", map[string]board.Role{"u1": board.RoleMember})

	_, err := f.server.CreateInvite(as("u1"), b.ID)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))

	code, err := f.server.CreateInvite(as("owner"), b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, b.InviteCode, code)

	_, err = f.server.JoinByInvite(as("u2"), b.InviteCode)
	assert.True(t, cerr.IsCode(err, cerr.NotFound), "old code no longer works")
	_, err = f.server.JoinByInvite(as("u2"), code)
	assert.NoError(t, err)
}

func TestLeave_LastMemberDeletesBoard(t *testing.T) {
	f := newFixture(t, nil)
	b := f.seedBoard(t, "owner", nil)

	res, err := f.server.Leave(as("owner"), b.ID)
	require.NoError(t, err)
	assert.True(t, res.BoardDeleted)
	assert.Equal(t, []string{b.ID}, f.purger.purged)
	assert.Equal(t, eventbus.BoardDeleted, f.nextEvent(t).Type)

	_, err = f.repo.Get(context.Background(), b.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = f.server.Leave(as("owner"), b.ID)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestLeave_OwnerPromotesFirstMember(t *testing.T) {
	f := newFixture(t, nil)
	b := f.seedBoard(t, "owner", map[string]board.Role{"u1": board.RoleViewer, "u2": board.RoleMember})

	res, err := f.server.Leave(as("owner"), b.ID)
	require.NoError(t, err)
	assert.False(t, res.BoardDeleted)
	assert.Equal(t, "u1", res.NewOwnerID)

	stored, err := f.repo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.OwnerID)
	admins := 0
	for _, m := range stored.Members {
		if m.Role == board.RoleAdmin {
			admins++
		}
	}
	assert.Equal(t, 1, admins)
	assert.Equal(t, board.RoleAdmin, stored.RoleOf("u1"))
	assert.Equal(t, board.RoleMember, stored.RoleOf("u2"))
}

func TestLeave_OwnerPrefersExistingAdmin(t *testing.T) {
	f := newFixture(t, nil)
	b := f.seedBoard(t, "owner", map[string]board.Role{"u1": board.RoleMember, "u2": board.RoleAdmin})

	res, err := f.server.Leave(as("owner"), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "u2", res.NewOwnerID)

	stored, err := f.repo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "u2", stored.OwnerID)
	assert.Equal(t, board.RoleMember, stored.RoleOf("u1"))
}

func TestLeave_NonMember(t *testing.T) {
	f := newFixture(t, nil)
	b := f.seedBoard(t, "owner", nil)

	_, err := f.server.Leave(as("stranger"), b.ID)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))
}

func TestSetRole(t *testing.T) {
	f := newFixture(t, nil)
	b := f.seedBoard(t, "owner", map[string]board.Role{"u1": board.RoleMember, "u2": board.RoleViewer})

	_, err := f.server.SetRole(as("u1"), b.ID, "u2", board.RoleMember)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))

	m, err := f.server.SetRole(as("owner"), b.ID, "u2", board.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, board.RoleAdmin, m.Role)
	ev := f.nextEvent(t)
	assert.Equal(t, eventbus.MemberRoleChanged, ev.Type)

	_, err = f.server.SetRole(as("u2"), b.ID, "owner", board.RoleViewer)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	_, err = f.server.SetRole(as("owner"), b.ID, "ghost", board.RoleViewer)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = f.server.SetRole(as("owner"), b.ID, "u1", board.RoleNone)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestListMembers(t *testing.T) {
	f := newFixture(t, nil)
	b := f.seedBoard(t, "owner", map[string]board.Role{"u1": board.RoleViewer})

	members, err := f.server.ListMembers(as("u1"), b.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = f.server.ListMembers(as("stranger"), b.ID)
	assert.True(t, cerr.IsCode(err, cerr.PermissionDenied))
}
