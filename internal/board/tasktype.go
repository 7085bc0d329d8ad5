package board

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/pkg/cerr"
)

const (
	defaultTaskTypeColor = "#6B7280"
	defaultTaskTypeIcon  = "📝"
)

func normalizeTaskTypes(types []TaskType, now time.Time) ([]TaskType, error) {
	out := make([]TaskType, 0, len(types))
	for i, tt := range types {
		tt.Name = strings.TrimSpace(tt.Name)
		if tt.Name == "" {
			return nil, cerr.InvalidField(fmt.Sprintf("taskTypes[%d].name", i), "required", "task type name is required")
		}
		if slices.ContainsFunc(out, func(o TaskType) bool { return o.Name == tt.Name }) {
			return nil, cerr.InvalidField(fmt.Sprintf("taskTypes[%d].name", i), "unique", fmt.Sprintf("duplicate task type %q", tt.Name))
		}
		if tt.ID == "" {
			tt.ID = newID()
			tt.Active = true
			tt.CreatedAt = now
		}
		if tt.Color == "" {
			tt.Color = defaultTaskTypeColor
		}
		if tt.Icon == "" {
			tt.Icon = defaultTaskTypeIcon
		}
		tt.Order = i
		out = append(out, tt)
	}
	return out, nil
}

// ListTaskTypes returns the taxonomy sorted by order, inactive types
// included so clients can still render existing tasks.
func (s *Server) ListTaskTypes(ctx context.Context, boardID string) ([]TaskType, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	b, err := s.guard.Authorize(ctx, userID, boardID, RoleViewer)
	if err != nil {
		return nil, err
	}
	types := slices.Clone(b.TaskTypes)
	slices.SortStableFunc(types, func(a, c TaskType) int { return a.Order - c.Order })
	return types, nil
}

type TaskTypeRequest struct {
	Name        *string `json:"name"`
	Color       *string `json:"color"`
	Icon        *string `json:"icon"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
	Active      *bool   `json:"isActive"`
}

func (s *Server) AddTaskType(ctx context.Context, boardID string, req *TaskTypeRequest) (*TaskType, error) {
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return nil, cerr.InvalidField("name", "required", "task type name is required")
	}
	var added TaskType
	_, err := s.mutate(ctx, boardID, RoleAdmin, func(b *Board) error {
		name := strings.TrimSpace(*req.Name)
		if _, exists := b.TaskTypeByName(name); exists {
			return cerr.NewError(cerr.AlreadyExists, "task type already exists", nil)
		}
		order := 0
		for _, tt := range b.TaskTypes {
			if tt.Order < generalOrder && tt.Order >= order {
				order = tt.Order + 1
			}
		}
		added = TaskType{
			ID:        newID(),
			Name:      name,
			Color:     defaultTaskTypeColor,
			Icon:      defaultTaskTypeIcon,
			Order:     order,
			Active:    true,
			CreatedAt: s.now(),
		}
		applyTaskType(&added, req)
		b.TaskTypes = append(b.TaskTypes, added)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

func (s *Server) UpdateTaskType(ctx context.Context, boardID, typeID string, req *TaskTypeRequest) (*TaskType, error) {
	var updated TaskType
	_, err := s.mutate(ctx, boardID, RoleAdmin, func(b *Board) error {
		tt, ok := b.TaskType(typeID)
		if !ok {
			return cerr.NewError(cerr.NotFound, "task type not found", nil)
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return cerr.InvalidField("name", "required", "task type name is required")
			}
			if other, exists := b.TaskTypeByName(name); exists && other.ID != typeID {
				return cerr.NewError(cerr.AlreadyExists, "task type already exists", nil)
			}
		}
		applyTaskType(tt, req)
		updated = *tt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeactivateTaskType hides a type from new tasks. Existing tasks keep it.
func (s *Server) DeactivateTaskType(ctx context.Context, boardID, typeID string) error {
	_, err := s.mutate(ctx, boardID, RoleAdmin, func(b *Board) error {
		tt, ok := b.TaskType(typeID)
		if !ok {
			return cerr.NewError(cerr.NotFound, "task type not found", nil)
		}
		tt.Active = false
		return nil
	})
	return err
}

func applyTaskType(tt *TaskType, req *TaskTypeRequest) {
	if req.Name != nil {
		tt.Name = strings.TrimSpace(*req.Name)
	}
	if req.Color != nil && *req.Color != "" {
		tt.Color = *req.Color
	}
	if req.Icon != nil && *req.Icon != "" {
		tt.Icon = *req.Icon
	}
	if req.Description != nil {
		tt.Description = *req.Description
	}
	if req.Order != nil {
		tt.Order = *req.Order
	}
	if req.Active != nil {
		tt.Active = *req.Active
	}
}

func (s *Server) handleListTaskTypes(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.ListTaskTypes(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleAddTaskType(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusCreated, func(ctx context.Context) (any, error) {
		var req TaskTypeRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.AddTaskType(ctx, chi.URLParam(r, "id"), &req)
	})
}

func (s *Server) handleUpdateTaskType(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req TaskTypeRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.UpdateTaskType(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "typeId"), &req)
	})
}

func (s *Server) handleDeactivateTaskType(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		typeID := chi.URLParam(r, "typeId")
		if err := s.DeactivateTaskType(ctx, chi.URLParam(r, "id"), typeID); err != nil {
			return nil, err
		}
		return map[string]string{"id": typeID}, nil
	})
}
