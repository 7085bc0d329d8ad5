package pushnotification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/config"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/internal/pushsubscription"
	"github.com/kazz187/prepboard/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/prepboard/internal/task"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/storage"
)

// pushService stands in for the browser push endpoints.
type pushService struct {
	mu       sync.Mutex
	status   map[string]int
	received map[string][]NotificationPayload
}

func (p *pushService) send(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var payload NotificationPayload
	if err := json.Unmarshal(message, &payload); err != nil {
		return nil, err
	}
	if options.TTL != ttlSeconds || options.VAPIDPrivateKey == "" {
		return nil, io.ErrUnexpectedEOF
	}
	status, ok := p.status[s.Endpoint]
	if !ok {
		status = http.StatusCreated
	}
	if status < 400 {
		p.received[s.Endpoint] = append(p.received[s.Endpoint], payload)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (p *pushService) got(endpoint string) []NotificationPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received[endpoint]
}

type fixture struct {
	repo    pushsubscription.Repository
	push    *pushService
	sender  *Sender
	vapid   *config.VAPIDEnv
	created time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := repositoryimpl.NewYAMLRepository(s)
	vapid := &config.VAPIDEnv{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", VAPIDContact: "mailto:ops@example.com"}
	push := &pushService{status: map[string]int{}, received: map[string][]NotificationPayload{}}
	sender := NewSender(vapid, repo)
	sender.send = push.send
	return &fixture{repo: repo, push: push, sender: sender, vapid: vapid, created: time.Now().UTC()}
}

func (f *fixture) subscribe(t *testing.T, id, userID, endpoint string) {
	t.Helper()
	require.NoError(t, f.repo.Save(context.Background(), &pushsubscription.Subscription{
		ID: id, UserID: userID, Endpoint: endpoint, P256dhKey: "p", AuthKey: "a", CreatedAt: f.created,
	}))
}

func TestSender_SendToUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.subscribe(t, "s1", "bob", "https://push.example.com/bob-laptop")
	f.subscribe(t, "s2", "bob", "https://push.example.com/bob-phone")
	f.subscribe(t, "s3", "carol", "https://push.example.com/carol")
	f.subscribe(t, "s4", "carol", "https://push.example.com/carol-old")
	f.push.status["https://push.example.com/carol-old"] = http.StatusGone
	f.push.status["https://push.example.com/bob-phone"] = http.StatusTooManyRequests

	sent := f.sender.SendToUsers(ctx, []string{"bob", "carol", "nobody"}, &NotificationPayload{Title: "hi"})
	assert.Equal(t, 2, sent)
	assert.Len(t, f.push.got("https://push.example.com/bob-laptop"), 1)
	assert.Len(t, f.push.got("https://push.example.com/carol"), 1)

	_, err := f.repo.FindByEndpoint(ctx, "https://push.example.com/carol-old")
	assert.True(t, cerr.IsCode(err, cerr.NotFound), "expired subscription must be removed")
	_, err = f.repo.FindByEndpoint(ctx, "https://push.example.com/bob-phone")
	assert.NoError(t, err, "throttled subscription is kept")
}

func TestSender_Disabled(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "s1", "bob", "https://push.example.com/bob")
	f.vapid.VAPIDPrivateKey = ""

	assert.False(t, f.sender.Enabled())
	assert.Zero(t, f.sender.SendToUsers(context.Background(), []string{"bob"}, &NotificationPayload{Title: "hi"}))
	assert.Empty(t, f.push.got("https://push.example.com/bob"))
}

func TestDispatcher_Handle(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "s1", "alice", "https://push.example.com/alice")
	f.subscribe(t, "s2", "bob", "https://push.example.com/bob")
	f.subscribe(t, "s3", "carol", "https://push.example.com/carol")
	d := NewDispatcher(eventbus.New(), f.sender)

	tk := &task.Task{
		ID:         "t1",
		BoardID:    "b1",
		Title:      "Two Sum",
		CreatedBy:  "alice",
		AssignedTo: []task.Assignment{{UserID: "bob"}, {UserID: "carol"}},
	}
	view := task.NewView(tk, time.Now())

	// carol assigned herself: only bob hears about his assignment.
	d.handle(context.Background(), &eventbus.Event{
		Type:    eventbus.TaskUpdated,
		ActorID: "carol",
		Payload: &task.Change{TaskID: "t1", Task: view, Assigned: []string{"bob", "carol"}},
	})
	require.Len(t, f.push.got("https://push.example.com/bob"), 1)
	assign := f.push.got("https://push.example.com/bob")[0]
	assert.Equal(t, "You were assigned a task", assign.Title)
	assert.Equal(t, "/boards/b1?task=t1", assign.URL)
	assert.Empty(t, f.push.got("https://push.example.com/carol"))

	d.handle(context.Background(), &eventbus.Event{
		Type:    eventbus.TaskCommented,
		ActorID: "bob",
		Payload: &task.Change{TaskID: "t1", Task: view, Comment: &task.Comment{Text: "use a map"}},
	})
	require.Len(t, f.push.got("https://push.example.com/alice"), 1)
	assert.Equal(t, "Two Sum: use a map", f.push.got("https://push.example.com/alice")[0].Body)
	assert.Len(t, f.push.got("https://push.example.com/carol"), 1)
	assert.Len(t, f.push.got("https://push.example.com/bob"), 1)

	// Events without a task payload are ignored.
	d.handle(context.Background(), &eventbus.Event{Type: eventbus.TaskDeleted, Payload: &task.Change{TaskID: "t1"}})
	d.handle(context.Background(), &eventbus.Event{Type: eventbus.BoardUpdated, Payload: "b1"})
	assert.Len(t, f.push.got("https://push.example.com/alice"), 1)
}

func TestServer_RegisterAndUnregister(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(f.vapid, f.repo, f.sender)
	bob := auth.ContextWithUserID(context.Background(), "bob")
	carol := auth.ContextWithUserID(context.Background(), "carol")

	key, err := srv.VapidPublicKey()
	require.NoError(t, err)
	assert.Equal(t, "pub", key)

	req := &RegisterRequest{Endpoint: " https://push.example.com/x "}
	req.Keys.P256dh = "p"
	err = srv.Register(bob, req)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
	req.Keys.Auth = "a"
	require.NoError(t, srv.Register(bob, req))

	first, err := f.repo.FindByEndpoint(context.Background(), "https://push.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "bob", first.UserID)

	// Re-registering the endpoint keeps its id.
	require.NoError(t, srv.Register(bob, req))
	again, err := f.repo.FindByEndpoint(context.Background(), "https://push.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	sent, err := srv.SendTest(bob)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	assert.True(t, cerr.IsCode(srv.Unregister(carol, "https://push.example.com/x"), cerr.NotFound))
	require.NoError(t, srv.Unregister(bob, "https://push.example.com/x"))
	_, err = f.repo.FindByEndpoint(context.Background(), "https://push.example.com/x")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = srv.SendTest(context.Background())
	assert.True(t, cerr.IsCode(err, cerr.Unauthenticated))
}
