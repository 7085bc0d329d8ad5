package internal

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/prepboard/internal/access"
	"github.com/kazz187/prepboard/internal/attachment"
	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	boardrepo "github.com/kazz187/prepboard/internal/board/repositoryimpl"
	"github.com/kazz187/prepboard/internal/config"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/internal/membership"
	"github.com/kazz187/prepboard/internal/pushnotification"
	pushsubrepo "github.com/kazz187/prepboard/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/prepboard/internal/realtime"
	"github.com/kazz187/prepboard/internal/reorder"
	"github.com/kazz187/prepboard/internal/task"
	taskrepo "github.com/kazz187/prepboard/internal/task/repositoryimpl"
	"github.com/kazz187/prepboard/pkg/keylock"
	"github.com/kazz187/prepboard/pkg/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type client struct {
	t     *testing.T
	url   string
	token string
}

func (c *client) do(method, path string, body any) (int, envelope) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.url+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func newTestServer(t *testing.T) (*httptest.Server, *auth.Verifier) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	env := &config.Env{BaseEnv: config.BaseEnv{CORSAllowedOrigins: "*"}}

	boards := boardrepo.NewYAMLRepository(s)
	tasks := taskrepo.NewYAMLRepository(s)
	pushSubs := pushsubrepo.NewYAMLRepository(s)
	bus := eventbus.New()
	locks := keylock.New()
	guard := access.NewGuard(boards)
	verifier := auth.NewVerifier("test-secret")

	blobs := attachment.NewStore(s, 1<<20)
	purger := task.NewPurger(tasks, blobs)
	engine := reorder.NewEngine(tasks, guard, bus, locks)
	sender := pushnotification.NewSender(&env.VAPIDEnv, pushSubs)

	srv := NewServer(
		env,
		verifier,
		board.NewServer(boards, guard, purger, bus, locks),
		membership.NewServer(boards, guard, purger, bus, locks),
		task.NewServer(tasks, guard, engine, blobs, bus),
		reorder.NewServer(engine),
		attachment.NewServer(blobs, guard),
		pushnotification.NewServer(&env.VAPIDEnv, pushSubs, sender),
		realtime.NewServer(realtime.NewHub(), guard, verifier, bus, 16, env.AllowedOrigins()),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, verifier
}

func login(t *testing.T, ts *httptest.Server, v *auth.Verifier, userID string) *client {
	t.Helper()
	token, err := v.Issue(userID, time.Hour)
	require.NoError(t, err)
	return &client{t: t, url: ts.URL, token: token}
}

func TestHandler_Health(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_RequiresAuthentication(t *testing.T) {
	ts, _ := newTestServer(t)
	anon := &client{t: t, url: ts.URL}

	status, env := anon.do(http.MethodGet, "/api/boards", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
	assert.Equal(t, "Unauthenticated", env.Error.Code)

	status, env = anon.do(http.MethodGet, "/api/attachments/b1/t1/x.txt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthenticated", env.Error.Code)

	forged := &client{t: t, url: ts.URL, token: "not-a-jwt"}
	status, _ = forged.do(http.MethodGet, "/api/boards", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = anon.do(http.MethodGet, "/api/nothing/here", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NotFound", env.Error.Code)
}

func TestHandler_BoardFlow(t *testing.T) {
	ts, v := newTestServer(t)
	alice := login(t, ts, v, "alice")
	bob := login(t, ts, v, "bob")
	eve := login(t, ts, v, "eve")

	status, env := alice.do(http.MethodPost, "/api/boards", board.CreateBoardRequest{Title: "FAANG prep"})
	require.Equal(t, http.StatusCreated, status, env.Error.Message)
	var created struct {
		ID         string `json:"id"`
		InviteCode string `json:"inviteLink"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.InviteCode)

	status, env = eve.do(http.MethodGet, "/api/boards/"+created.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PermissionDenied", env.Error.Code)

	status, _ = bob.do(http.MethodPost, "/api/boards/join/"+created.InviteCode, nil)
	require.Equal(t, http.StatusOK, status)

	var ids []string
	for _, title := range []string{"Two Sum", "LRU Cache", "Tell me about yourself"} {
		status, env = bob.do(http.MethodPost, "/api/tasks", task.CreateTaskRequest{
			BoardID: created.ID,
			Title:   title,
			Type:    board.GeneralTaskType,
			Column:  board.ColumnTodo,
		})
		require.Equal(t, http.StatusCreated, status, env.Error.Message)
		var tk struct {
			ID    string `json:"id"`
			Order int    `json:"order"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &tk))
		assert.Equal(t, len(ids), tk.Order)
		ids = append(ids, tk.ID)
	}

	status, env = bob.do(http.MethodPost, "/api/tasks/reorder", reorder.ReorderRequest{
		BoardID: created.ID,
		Tasks: []reorder.Item{
			{TaskID: ids[2], Column: board.ColumnTodo, Position: 0},
			{TaskID: ids[0], Column: board.ColumnTodo, Position: 1},
			{TaskID: ids[1], Column: board.ColumnTodo, Position: 2},
		},
	})
	require.Equal(t, http.StatusOK, status, env.Error.Message)

	status, env = alice.do(http.MethodGet, "/api/boards/"+created.ID+"/tasks", nil)
	require.Equal(t, http.StatusOK, status)
	var listed []struct {
		ID    string `json:"id"`
		Order int    `json:"order"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 3)
	assert.Equal(t, []string{ids[2], ids[0], ids[1]}, []string{listed[0].ID, listed[1].ID, listed[2].ID})
	for i, tk := range listed {
		assert.Equal(t, i, tk.Order)
	}

	status, env = eve.do(http.MethodPost, "/api/tasks/reorder", reorder.ReorderRequest{
		BoardID: created.ID,
		Tasks:   []reorder.Item{{TaskID: ids[0], Column: board.ColumnTodo}},
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.Success)
}
