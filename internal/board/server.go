package board

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/keylock"
)

type Server struct {
	repo     Repository
	guard    Authorizer
	tasks    TaskStore
	eventBus *eventbus.Bus
	locks    *keylock.Locker
	now      func() time.Time
}

func NewServer(repo Repository, guard Authorizer, tasks TaskStore, eventBus *eventbus.Bus, locks *keylock.Locker) *Server {
	return &Server{
		repo:     repo,
		guard:    guard,
		tasks:    tasks,
		eventBus: eventBus,
		locks:    locks,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/boards", s.handleCreateBoard)
	r.Get("/boards", s.handleListBoards)
	r.Get("/boards/{id}", s.handleGetBoard)
	r.Put("/boards/{id}", s.handleUpdateBoard)
	r.Delete("/boards/{id}", s.handleDeleteBoard)
	r.Post("/boards/{id}/archive", s.handleArchiveBoard)
	r.Post("/boards/{id}/restore", s.handleRestoreBoard)

	r.Get("/boards/{id}/task-types", s.handleListTaskTypes)
	r.Post("/boards/{id}/task-types", s.handleAddTaskType)
	r.Put("/boards/{id}/task-types/{typeId}", s.handleUpdateTaskType)
	r.Delete("/boards/{id}/task-types/{typeId}", s.handleDeactivateTaskType)
}

type CreateBoardRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Columns     []Column       `json:"columns"`
	TaskTypes   []TaskType     `json:"taskTypes"`
	Labels      []Label        `json:"labels"`
	Settings    *SettingsPatch `json:"settings"`
}

// CreateBoard makes the caller owner and sole admin of a new board. Column,
// task type and label lists left empty get the defaults.
func (s *Server) CreateBoard(ctx context.Context, req *CreateBoardRequest) (*Board, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	title, err := normalizeTitle(req.Title)
	if err != nil {
		return nil, err
	}
	columns, err := normalizeColumns(req.Columns)
	if err != nil {
		return nil, err
	}
	labels, err := normalizeLabels(req.Labels)
	if err != nil {
		return nil, err
	}
	now := s.now()
	taskTypes, err := normalizeTaskTypes(req.TaskTypes, now)
	if err != nil {
		return nil, err
	}
	settings := DefaultSettings()
	if err := req.Settings.Apply(&settings); err != nil {
		return nil, err
	}

	b := &Board{
		ID:          ulid.Make().String(),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		OwnerID:     userID,
		Columns:     columns,
		TaskTypes:   taskTypes,
		Labels:      labels,
		Settings:    settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.AddMember(userID, RoleAdmin, now)
	b.ApplyDefaults(now)
	if err := CreateWithInvite(ctx, s.repo, b); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "board created", "board_id", b.ID)
	return b, nil
}

// ListBoards returns the caller's boards, newest first.
func (s *Server) ListBoards(ctx context.Context, archived bool) ([]*Board, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	boards, err := s.repo.ListByMember(ctx, userID, archived)
	if err != nil {
		return nil, err
	}
	if boards == nil {
		boards = []*Board{}
	}
	return boards, nil
}

func (s *Server) GetBoard(ctx context.Context, id string) (*Board, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	return s.guard.Authorize(ctx, userID, id, RoleViewer)
}

type UpdateBoardRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Columns     []Column       `json:"columns"`
	Labels      []Label        `json:"labels"`
	Settings    *SettingsPatch `json:"settings"`
}

// UpdateBoard is admin only. Absent fields are left unchanged. A columns
// list must not be empty and must keep every column type that still holds
// a task, archived tasks included.
func (s *Server) UpdateBoard(ctx context.Context, id string, req *UpdateBoardRequest) (*Board, error) {
	return s.mutate(ctx, id, RoleAdmin, func(b *Board) error {
		if req.Title != nil {
			title, err := normalizeTitle(*req.Title)
			if err != nil {
				return err
			}
			b.Title = title
		}
		if req.Description != nil {
			b.Description = strings.TrimSpace(*req.Description)
		}
		if req.Columns != nil {
			if len(req.Columns) == 0 {
				return cerr.InvalidField("columns", "min_items", "a board needs at least one column")
			}
			columns, err := normalizeColumns(req.Columns)
			if err != nil {
				return err
			}
			if err := s.keepColumnsInUse(ctx, b, columns); err != nil {
				return err
			}
			b.Columns = columns
		}
		if req.Labels != nil {
			labels, err := normalizeLabels(req.Labels)
			if err != nil {
				return err
			}
			b.Labels = labels
		}
		return req.Settings.Apply(&b.Settings)
	})
}

func (s *Server) ArchiveBoard(ctx context.Context, id string) (*Board, error) {
	return s.mutate(ctx, id, RoleAdmin, func(b *Board) error {
		if !b.Archived {
			now := s.now()
			b.Archived = true
			b.ArchivedAt = &now
		}
		return nil
	})
}

func (s *Server) RestoreBoard(ctx context.Context, id string) (*Board, error) {
	return s.mutate(ctx, id, RoleAdmin, func(b *Board) error {
		b.Archived = false
		b.ArchivedAt = nil
		return nil
	})
}

// DeleteBoard is owner only and removes every task of the board first.
func (s *Server) DeleteBoard(ctx context.Context, id string) error {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	b, err := s.guard.Authorize(ctx, userID, id, RoleViewer)
	if err != nil {
		return err
	}
	if !b.IsOwner(userID) {
		return cerr.NewError(cerr.PermissionDenied, "only the board owner can delete the board", nil)
	}
	if err := Purge(ctx, s.repo, s.tasks, id); err != nil {
		return err
	}
	s.eventBus.PublishNew(eventbus.BoardDeleted, id, userID, map[string]string{"id": id})
	slog.InfoContext(ctx, "board deleted", "board_id", id)
	return nil
}

// Purge deletes a board and cascades to its tasks. Tasks go first so a
// failure never leaves tasks pointing at a missing board.
func Purge(ctx context.Context, repo Repository, purger TaskPurger, boardID string) error {
	if err := purger.PurgeBoard(ctx, boardID); err != nil {
		return err
	}
	return repo.Delete(ctx, boardID)
}

// keepColumnsInUse fails with FailedPrecondition when next drops a column
// type of b that tasks still sit in. Callers hold the board lock, which task
// writes also take, so no task can enter a column between the check and the
// update.
func (s *Server) keepColumnsInUse(ctx context.Context, b *Board, next []Column) error {
	var removed []ColumnType
	for _, c := range b.ColumnTypes() {
		if !slices.ContainsFunc(next, func(n Column) bool { return n.Type == c }) {
			removed = append(removed, c)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	used, err := s.tasks.ColumnsInUse(ctx, b.ID)
	if err != nil {
		return err
	}
	for _, c := range removed {
		if slices.Contains(used, c) {
			return cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("column %s still holds tasks; move or delete them first", c), nil)
		}
	}
	return nil
}

// mutate runs a read-modify-write cycle on a board the caller holds required
// on, then broadcasts the new state.
func (s *Server) mutate(ctx context.Context, id string, required Role, fn func(b *Board) error) (*Board, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	b, err := s.guard.Authorize(ctx, userID, id, required)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.eventBus.PublishNew(eventbus.BoardUpdated, b.ID, userID, b)
	return b, nil
}

func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusCreated, func(ctx context.Context) (any, error) {
		var req CreateBoardRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.CreateBoard(ctx, &req)
	})
}

func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.ListBoards(ctx, r.URL.Query().Get("archived") == "true")
	})
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.GetBoard(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req UpdateBoardRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.UpdateBoard(ctx, chi.URLParam(r, "id"), &req)
	})
}

func (s *Server) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		id := chi.URLParam(r, "id")
		if err := s.DeleteBoard(ctx, id); err != nil {
			return nil, err
		}
		return map[string]string{"id": id}, nil
	})
}

func (s *Server) handleArchiveBoard(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.ArchiveBoard(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleRestoreBoard(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.RestoreBoard(ctx, chi.URLParam(r, "id"))
	})
}
