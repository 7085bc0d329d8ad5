package pushnotification

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/config"
	"github.com/kazz187/prepboard/internal/pushsubscription"
	"github.com/kazz187/prepboard/pkg/cerr"
)

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	sender   *Sender
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, sender *Sender) *Server {
	return &Server{
		vapidEnv: vapidEnv,
		repo:     repo,
		sender:   sender,
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/push/vapid-public-key", s.handleVapidPublicKey)
	r.Post("/push/subscriptions", s.handleRegister)
	r.Delete("/push/subscriptions", s.handleUnregister)
	r.Post("/push/test", s.handleTest)
}

type RegisterRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) VapidPublicKey() (string, error) {
	if s.vapidEnv.VAPIDPublicKey == "" {
		return "", cerr.NewError(cerr.FailedPrecondition, "VAPID keys not configured", nil)
	}
	return s.vapidEnv.VAPIDPublicKey, nil
}

// Register stores the caller's subscription. Registering a known endpoint
// again replaces its keys and owner.
func (s *Server) Register(ctx context.Context, req *RegisterRequest) error {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return err
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	switch {
	case endpoint == "":
		return cerr.InvalidField("endpoint", "required", "endpoint is required")
	case req.Keys.P256dh == "":
		return cerr.InvalidField("keys.p256dh", "required", "p256dh key is required")
	case req.Keys.Auth == "":
		return cerr.InvalidField("keys.auth", "required", "auth key is required")
	}
	sub := &pushsubscription.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Endpoint:  endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
		CreatedAt: time.Now().UTC(),
	}
	if existing, err := s.repo.FindByEndpoint(ctx, endpoint); err == nil {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	}
	return s.repo.Save(ctx, sub)
}

// Unregister removes a subscription of the caller.
func (s *Server) Unregister(ctx context.Context, endpoint string) error {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return err
	}
	if endpoint == "" {
		return cerr.InvalidField("endpoint", "required", "endpoint is required")
	}
	sub, err := s.repo.FindByEndpoint(ctx, endpoint)
	if err != nil {
		return err
	}
	if sub.UserID != userID {
		return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	return s.repo.Delete(ctx, sub.ID)
}

func (s *Server) SendTest(ctx context.Context) (int, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return 0, err
	}
	if !s.sender.Enabled() {
		return 0, cerr.NewError(cerr.FailedPrecondition, "VAPID keys not configured", nil)
	}
	return s.sender.SendToUsers(ctx, []string{userID}, &NotificationPayload{
		Title: "PrepBoard Test",
		Body:  "Push notifications are working!",
	}), nil
}

func (s *Server) handleVapidPublicKey(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		key, err := s.VapidPublicKey()
		if err != nil {
			return nil, err
		}
		return map[string]string{"publicKey": key}, nil
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusCreated, func(ctx context.Context) (any, error) {
		var req RegisterRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := s.Register(ctx, &req); err != nil {
			return nil, err
		}
		return map[string]string{"endpoint": req.Endpoint}, nil
	})
}

type unregisterRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req unregisterRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		if err := s.Unregister(ctx, req.Endpoint); err != nil {
			return nil, err
		}
		return map[string]string{"endpoint": req.Endpoint}, nil
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		sent, err := s.SendTest(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"sent": sent}, nil
	})
}
