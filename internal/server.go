package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/prepboard/internal/attachment"
	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/config"
	"github.com/kazz187/prepboard/internal/membership"
	"github.com/kazz187/prepboard/internal/pushnotification"
	"github.com/kazz187/prepboard/internal/realtime"
	"github.com/kazz187/prepboard/internal/reorder"
	"github.com/kazz187/prepboard/internal/task"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/clog"
)

type Server struct {
	server                 *http.Server
	env                    *config.Env
	verifier               *auth.Verifier
	boardServer            *board.Server
	membershipServer       *membership.Server
	taskServer             *task.Server
	reorderServer          *reorder.Server
	attachmentServer       *attachment.Server
	pushNotificationServer *pushnotification.Server
	realtimeServer         *realtime.Server
}

func NewServer(
	env *config.Env,
	verifier *auth.Verifier,
	boardServer *board.Server,
	membershipServer *membership.Server,
	taskServer *task.Server,
	reorderServer *reorder.Server,
	attachmentServer *attachment.Server,
	pushNotificationServer *pushnotification.Server,
	realtimeServer *realtime.Server,
) *Server {
	return &Server{
		env:                    env,
		verifier:               verifier,
		boardServer:            boardServer,
		membershipServer:       membershipServer,
		taskServer:             taskServer,
		reorderServer:          reorderServer,
		attachmentServer:       attachmentServer,
		pushNotificationServer: pushNotificationServer,
		realtimeServer:         realtimeServer,
	}
}

// Handler builds the full HTTP handler tree. JSON routes answer through the
// cerr envelope; attachment downloads write raw bodies and the WebSocket
// endpoint hijacks the connection, so both sit outside it.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			middleware.RequestID,
			clog.SlogChiMiddleware(),
		)
		r.Group(func(r chi.Router) {
			r.Use(
				cerr.NewJSONEnvelopeChiMiddleware(),
				s.verifier.NewChiMiddleware(),
			)
			s.boardServer.RegisterRoutes(r)
			s.membershipServer.RegisterRoutes(r)
			s.reorderServer.RegisterRoutes(r)
			s.taskServer.RegisterRoutes(r)
			s.pushNotificationServer.RegisterRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.verifier.NewRawChiMiddleware())
			s.attachmentServer.RegisterRoutes(r)
		})
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.NotFound, "not found", nil))
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle("/ws", s.realtimeServer)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker()))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins: s.env.AllowedOrigins(),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(mux), &http2.Server{})
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of
// every request, so cancelling it also ends open WebSocket sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
