package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/net/websocket"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/clog"
)

const writeTimeout = 10 * time.Second

var errOriginNotAllowed = errors.New("origin not allowed")

const (
	actionJoin  = "join"
	actionLeave = "leave"
)

type clientFrame struct {
	Action  string `json:"action"`
	BoardID string `json:"boardId"`
}

type controlFrame struct {
	Type         string `json:"type"`
	BoardID      string `json:"boardId,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type Server struct {
	hub            *Hub
	guard          board.Authorizer
	authn          Authenticator
	eventBus       *eventbus.Bus
	sendBuffer     int
	allowedOrigins []string
}

func NewServer(hub *Hub, guard board.Authorizer, authn Authenticator, eventBus *eventbus.Bus, sendBuffer int, allowedOrigins []string) *Server {
	return &Server{
		hub:            hub,
		guard:          guard,
		authn:          authn,
		eventBus:       eventBus,
		sendBuffer:     sendBuffer,
		allowedOrigins: allowedOrigins,
	}
}

// Run broadcasts every bus event to its board's room, in publish order,
// until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	subID, events := s.eventBus.Subscribe(256)
	defer s.eventBus.Unsubscribe(subID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.dispatch(ctx, ev)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, ev *eventbus.Event) {
	if _, err := s.hub.Broadcast(ev.BoardID, ev); err != nil {
		slog.ErrorContext(ctx, "failed to broadcast event", "event_type", ev.Type, "board_id", ev.BoardID, "error", err)
		return
	}
	switch ev.Type {
	case eventbus.BoardDeleted:
		s.hub.evict(ev.BoardID)
	case eventbus.MemberLeft:
		s.hub.evictUser(ev.BoardID, ev.ActorID)
	}
}

// ServeHTTP authenticates the upgrade request, then hands it to the
// WebSocket handshake.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authn.Authenticate(r)
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	clog.AddUser(r.Context(), userID)
	ws := websocket.Server{
		Handshake: s.checkOrigin,
		Handler:   s.serve,
	}
	ws.ServeHTTP(w, r.WithContext(auth.ContextWithUserID(r.Context(), userID)))
}

func (s *Server) checkOrigin(config *websocket.Config, r *http.Request) error {
	if slices.Contains(s.allowedOrigins, "*") {
		return nil
	}
	origin, err := websocket.Origin(config, r)
	if err != nil {
		return err
	}
	if origin == nil || !slices.Contains(s.allowedOrigins, originString(origin)) {
		return errOriginNotAllowed
	}
	return nil
}

func originString(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func (s *Server) serve(ws *websocket.Conn) {
	ctx := ws.Request().Context()
	userID, _ := auth.UserIDFromContext(ctx)
	c := newConn(userID, s.sendBuffer)
	defer s.hub.leaveAll(c)
	slog.DebugContext(ctx, "realtime connection opened", "connection_id", c.id)

	var wg conc.WaitGroup
	wg.Go(func() { s.writeLoop(ws, c) })
	s.send(c, controlFrame{Type: "connected", ConnectionID: c.id})

	s.readLoop(ctx, ws, c)

	c.close()
	_ = ws.Close()
	wg.Wait()
	slog.DebugContext(ctx, "realtime connection closed", "connection_id", c.id)
}

func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, c *Conn) {
	for {
		var frame clientFrame
		if err := websocket.JSON.Receive(ws, &frame); err != nil {
			return
		}
		select {
		case <-c.Done():
			return
		default:
		}
		switch frame.Action {
		case actionJoin:
			if _, err := s.guard.Authorize(ctx, c.userID, frame.BoardID, board.RoleViewer); err != nil {
				s.sendError(c, err)
				continue
			}
			s.hub.Join(frame.BoardID, c)
			s.send(c, controlFrame{Type: "joined", BoardID: frame.BoardID})
		case actionLeave:
			s.hub.Leave(frame.BoardID, c)
			s.send(c, controlFrame{Type: "left", BoardID: frame.BoardID})
		default:
			s.sendError(c, cerr.InvalidField("action", "in", "action must be join or leave"))
		}
	}
}

// writeLoop owns the socket's write side. Closing the socket on exit also
// unblocks the reader.
func (s *Server) writeLoop(ws *websocket.Conn, c *Conn) {
	defer ws.Close()
	for {
		select {
		case <-c.Done():
			return
		case data := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := websocket.Message.Send(ws, string(data)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) send(c *Conn, frame controlFrame) {
	data, err := jsonFrame(frame)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (s *Server) sendError(c *Conn, err error) {
	s.send(c, controlFrame{Type: "error", Code: cerr.CodeOf(err).String(), Message: publicMessage(err)})
}
