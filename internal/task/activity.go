package task

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/pkg/cerr"
)

func (s *Server) AddComment(ctx context.Context, taskID, text string) (*Change, error) {
	text, err := normalizeText("text", text)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskCommented, func(_ context.Context, m *mutation) (*Change, error) {
		if !m.board.Settings.AllowComments {
			return nil, cerr.NewError(cerr.FailedPrecondition, "comments are disabled on this board", nil)
		}
		c := m.task.AddComment(m.userID, text, m.now)
		return &Change{Comment: c, CommentID: c.ID}, nil
	})
}

// EditComment is restricted to the comment's author.
func (s *Server) EditComment(ctx context.Context, taskID, commentID, text string) (*Change, error) {
	text, err := normalizeText("text", text)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskCommentUpdated, func(_ context.Context, m *mutation) (*Change, error) {
		c, ok := m.task.Comment(commentID)
		if !ok {
			return nil, cerr.NewError(cerr.NotFound, "comment not found", nil)
		}
		if c.UserID != m.userID {
			return nil, cerr.NewError(cerr.PermissionDenied, "only the author can edit this comment", nil)
		}
		c, _ = m.task.EditComment(commentID, text, m.now)
		return &Change{Comment: c, CommentID: c.ID}, nil
	})
}

// DeleteComment is allowed to the comment's author and to board admins.
func (s *Server) DeleteComment(ctx context.Context, taskID, commentID string) (*Change, error) {
	return s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskCommentDeleted, func(_ context.Context, m *mutation) (*Change, error) {
		c, ok := m.task.Comment(commentID)
		if !ok {
			return nil, cerr.NewError(cerr.NotFound, "comment not found", nil)
		}
		if c.UserID != m.userID && m.board.RoleOf(m.userID) != board.RoleAdmin {
			return nil, cerr.NewError(cerr.PermissionDenied, "only the author or a board admin can delete this comment", nil)
		}
		m.task.RemoveComment(commentID)
		return &Change{CommentID: commentID}, nil
	})
}

func (s *Server) AddChecklistItem(ctx context.Context, taskID, text string) (*Change, error) {
	text, err := normalizeText("text", text)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskChecklistAdded, func(_ context.Context, m *mutation) (*Change, error) {
		item := m.task.AddChecklistItem(text)
		return &Change{ChecklistItem: item, ItemID: item.ID}, nil
	})
}

type ChecklistItemRequest struct {
	Text string `json:"text"`
	// nil toggles
	Completed *bool `json:"completed"`
}

func (s *Server) UpdateChecklistItem(ctx context.Context, taskID, itemID string, req *ChecklistItemRequest) (*Change, error) {
	text := strings.TrimSpace(req.Text)
	return s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskChecklistUpdated, func(_ context.Context, m *mutation) (*Change, error) {
		item, ok := m.task.SetChecklistItem(itemID, req.Completed, text, m.now)
		if !ok {
			return nil, cerr.NewError(cerr.NotFound, "checklist item not found", nil)
		}
		return &Change{ChecklistItem: item, ItemID: item.ID}, nil
	})
}

func (s *Server) DeleteChecklistItem(ctx context.Context, taskID, itemID string) (*Change, error) {
	return s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskChecklistDeleted, func(_ context.Context, m *mutation) (*Change, error) {
		if !m.task.RemoveChecklistItem(itemID) {
			return nil, cerr.NewError(cerr.NotFound, "checklist item not found", nil)
		}
		return &Change{ItemID: itemID}, nil
	})
}

type LogTimeRequest struct {
	Minutes     int    `json:"minutes"`
	Description string `json:"description"`
}

func (s *Server) LogTime(ctx context.Context, taskID string, req *LogTimeRequest) (*Change, error) {
	if req.Minutes <= 0 {
		return nil, cerr.InvalidField("minutes", "gt", "minutes must be positive")
	}
	description := strings.TrimSpace(req.Description)
	return s.mutate(ctx, taskID, board.RoleMember, eventbus.TaskTimeLogged, func(_ context.Context, m *mutation) (*Change, error) {
		log := m.task.LogTime(m.userID, req.Minutes, description, m.now)
		return &Change{TimeLog: log}, nil
	})
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusCreated, func(ctx context.Context) (any, error) {
		var req textRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.AddComment(ctx, chi.URLParam(r, "id"), req.Text)
	})
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req textRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.EditComment(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "commentId"), req.Text)
	})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.DeleteComment(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "commentId"))
	})
}

func (s *Server) handleAddChecklistItem(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusCreated, func(ctx context.Context) (any, error) {
		var req textRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.AddChecklistItem(ctx, chi.URLParam(r, "id"), req.Text)
	})
}

func (s *Server) handleUpdateChecklistItem(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req ChecklistItemRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.UpdateChecklistItem(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), &req)
	})
}

func (s *Server) handleDeleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.DeleteChecklistItem(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	})
}

func (s *Server) handleLogTime(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusCreated, func(ctx context.Context) (any, error) {
		var req LogTimeRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.LogTime(ctx, chi.URLParam(r, "id"), &req)
	})
}
