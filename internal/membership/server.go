// Package membership owns who belongs to a board: invites, joining, leaving
// and role changes.
package membership

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/keylock"
)

type Server struct {
	repo     board.Repository
	guard    board.Authorizer
	purger   board.TaskPurger
	eventBus *eventbus.Bus
	locks    *keylock.Locker
	now      func() time.Time
}

func NewServer(repo board.Repository, guard board.Authorizer, purger board.TaskPurger, eventBus *eventbus.Bus, locks *keylock.Locker) *Server {
	return &Server{
		repo:     repo,
		guard:    guard,
		purger:   purger,
		eventBus: eventBus,
		locks:    locks,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/boards/join/{inviteCode}", s.handleJoin)
	r.Delete("/boards/{id}/leave", s.handleLeave)
	r.Get("/boards/{id}/members", s.handleListMembers)
	r.Put("/boards/{id}/members/{userId}", s.handleSetRole)
	r.Post("/boards/{id}/invite", s.handleCreateInvite)
}

type MemberEvent struct {
	UserID string     `json:"userId"`
	Role   board.Role `json:"role,omitempty"`
}

// CreateInvite replaces the board's invite code with a fresh one. Admin only.
func (s *Server) CreateInvite(ctx context.Context, boardID string) (string, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return "", err
	}
	unlock := s.locks.Lock(boardID)
	defer unlock()

	b, err := s.guard.Authorize(ctx, userID, boardID, board.RoleAdmin)
	if err != nil {
		return "", err
	}
	b.UpdatedAt = s.now()
	if err := board.RotateInvite(ctx, s.repo, b); err != nil {
		return "", err
	}
	s.eventBus.PublishNew(eventbus.BoardUpdated, b.ID, userID, b)
	return b.InviteCode, nil
}

// JoinByInvite adds the caller as a member of the board behind code.
func (s *Server) JoinByInvite(ctx context.Context, code string) (*board.Board, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, cerr.InvalidField("inviteCode", "required", "invite code is required")
	}
	found, err := s.repo.GetByInviteCode(ctx, code)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return nil, cerr.NewError(cerr.NotFound, "invalid invite link", err)
		}
		return nil, err
	}

	unlock := s.locks.Lock(found.ID)
	defer unlock()

	// re-read under the lock; the board may have changed since the lookup
	b, err := s.repo.Get(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if b.InviteCode != code {
		return nil, cerr.NewError(cerr.NotFound, "invalid invite link", nil)
	}
	now := s.now()
	if !b.AddMember(userID, board.RoleMember, now) {
		return nil, cerr.NewError(cerr.AlreadyExists, "you are already a member of this board", nil)
	}
	b.UpdatedAt = now
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.MemberJoined, b.ID, userID, MemberEvent{UserID: userID, Role: board.RoleMember})
	slog.InfoContext(ctx, "member joined", "board_id", b.ID)
	return b, nil
}

type LeaveResult struct {
	BoardID      string `json:"boardId"`
	BoardDeleted bool   `json:"boardDeleted"`
	NewOwnerID   string `json:"newOwner,omitempty"`
}

// Leave removes the caller from the board. The last member leaving deletes
// the board and its tasks. An owner leaving hands ownership to the first
// remaining admin, or else promotes the first remaining member to admin.
func (s *Server) Leave(ctx context.Context, boardID string) (*LeaveResult, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(boardID)
	defer unlock()

	b, err := s.guard.Authorize(ctx, userID, boardID, board.RoleViewer)
	if err != nil {
		return nil, err
	}
	b.RemoveMember(userID)
	result := &LeaveResult{BoardID: boardID}

	if len(b.Members) == 0 {
		if err := board.Purge(ctx, s.repo, s.purger, boardID); err != nil {
			return nil, err
		}
		result.BoardDeleted = true
		s.eventBus.PublishNew(eventbus.BoardDeleted, boardID, userID, map[string]string{"id": boardID})
		slog.InfoContext(ctx, "board deleted as no members left", "board_id", boardID)
		return result, nil
	}

	if b.IsOwner(userID) {
		result.NewOwnerID = transferOwnership(b)
	}
	b.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.MemberLeft, boardID, userID, MemberEvent{UserID: userID})
	if result.NewOwnerID != "" {
		s.eventBus.PublishNew(eventbus.BoardUpdated, boardID, userID, b)
	}
	return result, nil
}

// transferOwnership picks the next owner of a board whose owner just left
// and returns its user id. b must have at least one member.
func transferOwnership(b *board.Board) string {
	for _, m := range b.Members {
		if m.Role == board.RoleAdmin {
			b.OwnerID = m.UserID
			return m.UserID
		}
	}
	b.Members[0].Role = board.RoleAdmin
	b.OwnerID = b.Members[0].UserID
	return b.OwnerID
}

// SetRole changes a member's role. Only admins may do it and the owner always
// stays an admin.
func (s *Server) SetRole(ctx context.Context, boardID, targetUserID string, role board.Role) (*board.Member, error) {
	actorID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, cerr.InvalidField("role", "in", "role must be one of admin, member, viewer")
	}
	unlock := s.locks.Lock(boardID)
	defer unlock()

	b, err := s.guard.Authorize(ctx, actorID, boardID, board.RoleAdmin)
	if err != nil {
		return nil, err
	}
	m, ok := b.Member(targetUserID)
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "member not found", nil)
	}
	if b.IsOwner(targetUserID) && role != board.RoleAdmin {
		return nil, cerr.NewError(cerr.FailedPrecondition, "the board owner must remain an admin", nil)
	}
	if m.Role == role {
		return m, nil
	}
	m.Role = role
	updated := *m
	b.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.MemberRoleChanged, boardID, actorID, MemberEvent{UserID: targetUserID, Role: role})
	return &updated, nil
}

func (s *Server) ListMembers(ctx context.Context, boardID string) ([]board.Member, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	b, err := s.guard.Authorize(ctx, userID, boardID, board.RoleViewer)
	if err != nil {
		return nil, err
	}
	return b.Members, nil
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.JoinByInvite(ctx, chi.URLParam(r, "inviteCode"))
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.Leave(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.ListMembers(ctx, chi.URLParam(r, "id"))
	})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req setRoleRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		role, err := board.ParseRole(req.Role)
		if err != nil {
			return nil, cerr.InvalidField("role", "in", "role must be one of admin, member, viewer")
		}
		return s.SetRole(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "userId"), role)
	})
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		code, err := s.CreateInvite(ctx, chi.URLParam(r, "id"))
		if err != nil {
			return nil, err
		}
		return map[string]string{"inviteLink": code}, nil
	})
}
