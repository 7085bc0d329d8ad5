package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/kazz187/prepboard/internal/access"
	"github.com/kazz187/prepboard/internal/board"
	boardrepo "github.com/kazz187/prepboard/internal/board/repositoryimpl"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/storage"
)

// queryAuth trusts the user query parameter.
type queryAuth struct{}

func (queryAuth) Authenticate(r *http.Request) (string, error) {
	if user := r.URL.Query().Get("user"); user != "" {
		return user, nil
	}
	return "", cerr.NewError(cerr.Unauthenticated, "missing token", nil)
}

type frame struct {
	Type         string `json:"type"`
	BoardID      string `json:"boardId"`
	ActorID      string `json:"actorId"`
	ConnectionID string `json:"connectionId"`
	Code         string `json:"code"`
}

type harness struct {
	server *Server
	hub    *Hub
	bus    *eventbus.Bus
	url    string
}

func newHarness(t *testing.T, origins ...string) *harness {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	boards := boardrepo.NewYAMLRepository(s)
	now := time.Now().UTC()
	for _, b := range []*board.Board{
		{ID: "b1", Title: "one", OwnerID: "alice", CreatedAt: now},
		{ID: "b2", Title: "two", OwnerID: "carol", CreatedAt: now},
	} {
		b.AddMember(b.OwnerID, board.RoleAdmin, now)
		b.ApplyDefaults(now)
		require.NoError(t, board.CreateWithInvite(context.Background(), boards, b))
	}
	b1, err := boards.Get(context.Background(), "b1")
	require.NoError(t, err)
	b1.AddMember("bob", board.RoleViewer, now)
	require.NoError(t, boards.Update(context.Background(), b1))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	hub := NewHub()
	bus := eventbus.New()
	srv := NewServer(hub, access.NewGuard(boards), queryAuth{}, bus, 16, origins)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &harness{server: srv, hub: hub, bus: bus, url: "ws" + strings.TrimPrefix(ts.URL, "http")}
}

func (h *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	ws, err := websocket.Dial(h.url+"/?user="+user, "", "http://localhost")
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	f := receive(t, ws)
	require.Equal(t, "connected", f.Type)
	assert.NotEmpty(t, f.ConnectionID)
	return ws
}

func receive(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, websocket.JSON.Receive(ws, &f))
	return f
}

func action(t *testing.T, ws *websocket.Conn, act, boardID string) frame {
	t.Helper()
	require.NoError(t, websocket.JSON.Send(ws, clientFrame{Action: act, BoardID: boardID}))
	return receive(t, ws)
}

func TestServer_DeliversToRoomOnly(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")
	carol := h.dial(t, "carol")

	assert.Equal(t, frame{Type: "joined", BoardID: "b1"}, action(t, alice, actionJoin, "b1"))
	assert.Equal(t, "joined", action(t, alice, actionJoin, "b1").Type)
	assert.Equal(t, "joined", action(t, bob, actionJoin, "b1").Type)
	assert.Equal(t, "joined", action(t, carol, actionJoin, "b2").Type)

	h.server.dispatch(context.Background(), &eventbus.Event{ID: "e1", Type: eventbus.TaskCreated, BoardID: "b1", ActorID: "alice"})

	for _, ws := range []*websocket.Conn{alice, bob} {
		f := receive(t, ws)
		assert.Equal(t, string(eventbus.TaskCreated), f.Type)
		assert.Equal(t, "b1", f.BoardID)
		assert.Equal(t, "alice", f.ActorID)
		// The next frame answers this request, so the event came exactly once.
		assert.Equal(t, "left", action(t, ws, actionLeave, "b2").Type)
	}
	assert.Equal(t, frame{Type: "left", BoardID: "b2"}, action(t, carol, actionLeave, "b2"))

	assert.Equal(t, "left", action(t, bob, actionLeave, "b1").Type)
	h.server.dispatch(context.Background(), &eventbus.Event{ID: "e2", Type: eventbus.TaskDeleted, BoardID: "b1"})
	assert.Equal(t, string(eventbus.TaskDeleted), receive(t, alice).Type)
	assert.Equal(t, "left", action(t, bob, actionLeave, "b1").Type)
}

func TestServer_JoinRequiresMembership(t *testing.T) {
	h := newHarness(t)
	carol := h.dial(t, "carol")

	f := action(t, carol, actionJoin, "b1")
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, cerr.PermissionDenied.String(), f.Code)

	f = action(t, carol, actionJoin, "nope")
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, cerr.NotFound.String(), f.Code)

	f = action(t, carol, "shout", "b2")
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, cerr.InvalidArgument.String(), f.Code)
	assert.Equal(t, 0, h.hub.roomSize("b1"))
}

func TestServer_RejectsUnauthenticatedAndForeignOrigin(t *testing.T) {
	h := newHarness(t, "https://prep.example.com")

	_, err := websocket.Dial(h.url+"/", "", "https://prep.example.com")
	assert.Error(t, err)

	_, err = websocket.Dial(h.url+"/?user=alice", "", "https://evil.example.com")
	assert.Error(t, err)

	ws, err := websocket.Dial(h.url+"/?user=alice", "", "https://prep.example.com")
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "connected", receive(t, ws).Type)
}

func TestServer_EvictsOnMembershipEvents(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")
	action(t, alice, actionJoin, "b1")
	action(t, bob, actionJoin, "b1")
	require.Equal(t, 2, h.hub.roomSize("b1"))

	h.server.dispatch(context.Background(), &eventbus.Event{Type: eventbus.MemberLeft, BoardID: "b1", ActorID: "bob"})
	assert.Equal(t, eventbus.MemberLeft, eventbus.Type(receive(t, bob).Type))
	assert.Equal(t, 1, h.hub.roomSize("b1"))

	h.server.dispatch(context.Background(), &eventbus.Event{Type: eventbus.BoardDeleted, BoardID: "b1"})
	assert.Equal(t, eventbus.BoardDeleted, eventbus.Type(receive(t, alice).Type))
	assert.Equal(t, 0, h.hub.roomSize("b1"))
}

func TestServer_RunForwardsBusEvents(t *testing.T) {
	h := newHarness(t)
	c := newConn("alice", 64)
	h.hub.Join("b1", c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.server.Run(ctx) }()

	// Run subscribes asynchronously, so publish until a frame arrives.
	assert.Eventually(t, func() bool {
		h.bus.PublishNew(eventbus.TaskUpdated, "b1", "alice", nil)
		return len(c.send) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
