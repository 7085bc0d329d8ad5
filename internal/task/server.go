package task

import (
	"cmp"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/prepboard/internal/auth"
	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/internal/eventbus"
	"github.com/kazz187/prepboard/pkg/cerr"
)

type Server struct {
	repo      Repository
	guard     board.Authorizer
	sequencer Sequencer
	blobs     BlobStore
	eventBus  *eventbus.Bus
	now       func() time.Time
}

func NewServer(repo Repository, guard board.Authorizer, sequencer Sequencer, blobs BlobStore, eventBus *eventbus.Bus) *Server {
	return &Server{
		repo:      repo,
		guard:     guard,
		sequencer: sequencer,
		blobs:     blobs,
		eventBus:  eventBus,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/boards/{id}/tasks", s.handleListTasks)
	r.Get("/boards/{id}/tasks/archived", s.handleListArchived)
	r.Get("/boards/{id}/tasks/stats", s.handleStats)

	r.Post("/tasks", s.handleCreateTask)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Put("/tasks/{id}", s.handleUpdateTask)
	r.Delete("/tasks/{id}", s.handleDeleteTask)
	r.Post("/tasks/{id}/archive", s.handleArchiveTask)
	r.Post("/tasks/{id}/restore", s.handleRestoreTask)

	r.Post("/tasks/{id}/comments", s.handleAddComment)
	r.Put("/tasks/{id}/comments/{commentId}", s.handleEditComment)
	r.Delete("/tasks/{id}/comments/{commentId}", s.handleDeleteComment)
	r.Post("/tasks/{id}/checklist", s.handleAddChecklistItem)
	r.Put("/tasks/{id}/checklist/{itemId}", s.handleUpdateChecklistItem)
	r.Delete("/tasks/{id}/checklist/{itemId}", s.handleDeleteChecklistItem)
	r.Post("/tasks/{id}/time", s.handleLogTime)

	r.Post("/tasks/{id}/attachments", s.handleUploadAttachment)
	r.Delete("/tasks/{id}/attachments/{attachmentId}", s.handleDeleteAttachment)
}

type CreateTaskRequest struct {
	BoardID       string           `json:"board"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Type          string           `json:"type"`
	Difficulty    Difficulty       `json:"difficulty"`
	Priority      Priority         `json:"priority"`
	Company       string           `json:"company"`
	Tags          []string         `json:"tags"`
	Labels        []LabelRef       `json:"labels"`
	Column        board.ColumnType `json:"column"`
	Status        Status           `json:"status"`
	AssignedTo    []string         `json:"assignedTo"`
	DueDate       *time.Time       `json:"dueDate"`
	StartDate     *time.Time       `json:"startDate"`
	EstimatedTime int              `json:"estimatedTime"`
}

// CreateTask appends a new task to the end of its column.
func (s *Server) CreateTask(ctx context.Context, req *CreateTaskRequest) (*View, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	if req.BoardID == "" {
		return nil, cerr.InvalidField("board", "required", "board is required")
	}
	title, err := normalizeTitle(req.Title)
	if err != nil {
		return nil, err
	}
	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}
	t := &Task{
		ID:            newID(),
		BoardID:       req.BoardID,
		Title:         title,
		Description:   strings.TrimSpace(req.Description),
		Type:          cmp.Or(strings.TrimSpace(req.Type), board.GeneralTaskType),
		Difficulty:    cmp.Or(req.Difficulty, DifficultyMedium),
		Priority:      cmp.Or(req.Priority, PriorityMedium),
		Company:       strings.TrimSpace(req.Company),
		Tags:          tags,
		Labels:        normalizeLabels(req.Labels),
		Column:        cmp.Or(req.Column, board.ColumnTodo),
		Status:        req.Status,
		CreatedBy:     userID,
		DueDate:       req.DueDate,
		StartDate:     req.StartDate,
		EstimatedTime: req.EstimatedTime,
	}
	if err := validateFields(t); err != nil {
		return nil, err
	}

	var (
		view   *View
		change *Change
	)
	err = s.sequencer.Sequence(ctx, t.BoardID, userID, func(ctx context.Context) ([]board.ColumnType, error) {
		b, err := s.guard.Authorize(ctx, userID, t.BoardID, board.RoleMember)
		if err != nil {
			return nil, err
		}
		if err := validateOnBoard(b, t); err != nil {
			return nil, err
		}
		now := s.now()
		assigned, err := assign(b, t, req.AssignedTo, now)
		if err != nil {
			return nil, err
		}
		if t.Order, err = s.nextOrder(ctx, t.BoardID, t.Column); err != nil {
			return nil, err
		}
		t.CreatedAt = now
		t.PrepareSave(now)
		if err := s.repo.Create(ctx, t); err != nil {
			return nil, err
		}
		view = NewView(t, now)
		change = &Change{TaskID: t.ID, Task: view, Assigned: assigned}
		return nil, nil
	}, func(context.Context) {
		s.eventBus.PublishNew(eventbus.TaskCreated, t.BoardID, userID, change)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "task created", "task_id", t.ID)
	return view, nil
}

func (s *Server) GetTask(ctx context.Context, id string) (*View, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Authorize(ctx, userID, t.BoardID, board.RoleViewer); err != nil {
		return nil, err
	}
	return NewView(t, s.now()), nil
}

type UpdateTaskRequest struct {
	Title         *string           `json:"title"`
	Description   *string           `json:"description"`
	Type          *string           `json:"type"`
	Difficulty    *Difficulty       `json:"difficulty"`
	Priority      *Priority         `json:"priority"`
	Company       *string           `json:"company"`
	Tags          []string          `json:"tags"`
	Labels        []LabelRef        `json:"labels"`
	Column        *board.ColumnType `json:"column"`
	Status        *Status           `json:"status"`
	AssignedTo    []string          `json:"assignedTo"`
	DueDate       *time.Time        `json:"dueDate"`
	StartDate     *time.Time        `json:"startDate"`
	EstimatedTime *int              `json:"estimatedTime"`
}

// UpdateTask merges the present fields into the task. A column change moves
// the task to the end of the destination column.
func (s *Server) UpdateTask(ctx context.Context, id string, req *UpdateTaskRequest) (*View, error) {
	change, err := s.mutate(ctx, id, board.RoleMember, eventbus.TaskUpdated, func(ctx context.Context, m *mutation) (*Change, error) {
		t := m.task
		if req.Title != nil {
			title, err := normalizeTitle(*req.Title)
			if err != nil {
				return nil, err
			}
			t.Title = title
		}
		if req.Description != nil {
			t.Description = strings.TrimSpace(*req.Description)
		}
		if req.Type != nil {
			t.Type = cmp.Or(strings.TrimSpace(*req.Type), board.GeneralTaskType)
		}
		if req.Difficulty != nil {
			t.Difficulty = *req.Difficulty
		}
		if req.Priority != nil {
			t.Priority = *req.Priority
		}
		if req.Company != nil {
			t.Company = strings.TrimSpace(*req.Company)
		}
		if req.Tags != nil {
			tags, err := normalizeTags(req.Tags)
			if err != nil {
				return nil, err
			}
			t.Tags = tags
		}
		if req.Labels != nil {
			t.Labels = normalizeLabels(req.Labels)
		}
		if req.Status != nil {
			t.Status = *req.Status
		}
		if req.DueDate != nil {
			t.DueDate = req.DueDate
		}
		if req.StartDate != nil {
			t.StartDate = req.StartDate
		}
		if req.EstimatedTime != nil {
			t.EstimatedTime = *req.EstimatedTime
		}
		if err := validateFields(t); err != nil {
			return nil, err
		}
		if req.Column != nil && *req.Column != t.Column {
			t.Column = *req.Column
			if err := validateOnBoard(m.board, t); err != nil {
				return nil, err
			}
			if !t.Archived {
				order, err := s.nextOrder(ctx, t.BoardID, t.Column)
				if err != nil {
					return nil, err
				}
				t.Order = order
			}
		} else if req.Type != nil {
			if err := validateOnBoard(m.board, t); err != nil {
				return nil, err
			}
		}
		change := &Change{}
		if req.AssignedTo != nil {
			assigned, err := assign(m.board, t, req.AssignedTo, m.now)
			if err != nil {
				return nil, err
			}
			change.Assigned = assigned
		}
		return change, nil
	})
	if err != nil {
		return nil, err
	}
	return change.Task, nil
}

// DeleteTask removes a task and its attachment blobs. Admin only.
func (s *Server) DeleteTask(ctx context.Context, id string) error {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	var deleted *Task
	err = s.sequencer.Sequence(ctx, current.BoardID, userID, func(ctx context.Context) ([]board.ColumnType, error) {
		if _, err := s.guard.Authorize(ctx, userID, current.BoardID, board.RoleAdmin); err != nil {
			return nil, err
		}
		t, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return nil, err
		}
		deleted = t
		s.eventBus.PublishNew(eventbus.TaskDeleted, t.BoardID, userID, &Change{TaskID: t.ID})
		if t.Archived {
			return nil, nil
		}
		return []board.ColumnType{t.Column}, nil
	}, nil)
	if err != nil {
		return err
	}
	deleteBlobs(ctx, s.blobs, deleted.Attachments)
	slog.InfoContext(ctx, "task deleted", "task_id", id)
	return nil
}

// ArchiveTask soft deletes a task. Archiving an archived task is a no-op.
func (s *Server) ArchiveTask(ctx context.Context, id string) (*View, error) {
	change, err := s.mutate(ctx, id, board.RoleMember, eventbus.TaskArchived, func(_ context.Context, m *mutation) (*Change, error) {
		if !m.task.Archived {
			m.task.Archived = true
			m.task.ArchivedAt = &m.now
		}
		return &Change{}, nil
	})
	if err != nil {
		return nil, err
	}
	return change.Task, nil
}

// RestoreTask brings an archived task back at the end of its column, or of
// the board's first column when its own column no longer exists.
func (s *Server) RestoreTask(ctx context.Context, id string) (*View, error) {
	change, err := s.mutate(ctx, id, board.RoleMember, eventbus.TaskRestored, func(ctx context.Context, m *mutation) (*Change, error) {
		t := m.task
		if !t.Archived {
			return &Change{}, nil
		}
		if !m.board.HasColumn(t.Column) {
			if cols := m.board.ColumnTypes(); len(cols) > 0 {
				t.Column = cols[0]
			}
		}
		order, err := s.nextOrder(ctx, t.BoardID, t.Column)
		if err != nil {
			return nil, err
		}
		t.Archived = false
		t.ArchivedAt = nil
		t.Order = order
		return &Change{}, nil
	})
	if err != nil {
		return nil, err
	}
	return change.Task, nil
}

func (s *Server) ListTasks(ctx context.Context, boardID string, f Filter) ([]*View, error) {
	tasks, err := s.list(ctx, boardID, f)
	if err != nil {
		return nil, err
	}
	return NewViews(tasks, s.now()), nil
}

// ListArchived returns the archived tasks of a board, most recently archived
// first.
func (s *Server) ListArchived(ctx context.Context, boardID string) ([]*View, error) {
	return s.ListTasks(ctx, boardID, Filter{Archived: true})
}

func (s *Server) Stats(ctx context.Context, boardID string) (*Stats, error) {
	tasks, err := s.list(ctx, boardID, Filter{})
	if err != nil {
		return nil, err
	}
	return ComputeStats(tasks, s.now()), nil
}

func (s *Server) list(ctx context.Context, boardID string, f Filter) ([]*Task, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Authorize(ctx, userID, boardID, board.RoleViewer); err != nil {
		return nil, err
	}
	return s.repo.ListByBoard(ctx, boardID, f)
}

// nextOrder is the order that appends to the end of column.
func (s *Server) nextOrder(ctx context.Context, boardID string, column board.ColumnType) (int, error) {
	tasks, err := s.repo.ListByBoard(ctx, boardID, Filter{Column: column})
	if err != nil {
		return 0, err
	}
	next := 0
	for _, t := range tasks {
		next = max(next, t.Order+1)
	}
	return next, nil
}

type mutation struct {
	userID string
	board  *board.Board
	task   *Task
	now    time.Time
}

// mutate runs a read-modify-write cycle on a task while its board is
// sequenced. Columns the task left or entered are handed back to the
// sequencer for compaction, and eventType is published with the Change fn
// returns once the task holds its compacted order.
func (s *Server) mutate(ctx context.Context, id string, required board.Role, eventType eventbus.Type, fn func(ctx context.Context, m *mutation) (*Change, error)) (*Change, error) {
	userID, err := auth.RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var (
		change *Change
		saved  *Task
		moved  bool
		now    time.Time
	)
	err = s.sequencer.Sequence(ctx, current.BoardID, userID, func(ctx context.Context) ([]board.ColumnType, error) {
		b, err := s.guard.Authorize(ctx, userID, current.BoardID, required)
		if err != nil {
			return nil, err
		}
		t, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		beforeColumn, beforeArchived := t.Column, t.Archived
		m := &mutation{userID: userID, board: b, task: t, now: s.now()}
		if change, err = fn(ctx, m); err != nil {
			return nil, err
		}
		t.PrepareSave(m.now)
		if err := s.repo.Update(ctx, t); err != nil {
			return nil, err
		}
		change.TaskID = t.ID
		saved, now = t, m.now

		if beforeColumn == t.Column && beforeArchived == t.Archived {
			return nil, nil
		}
		moved = true
		if beforeColumn == t.Column {
			return []board.ColumnType{t.Column}, nil
		}
		return []board.ColumnType{beforeColumn, t.Column}, nil
	}, func(ctx context.Context) {
		if moved {
			if compacted, err := s.repo.Get(ctx, saved.ID); err == nil {
				saved = compacted
			} else {
				slog.WarnContext(ctx, "failed to reload task after compaction", "task_id", saved.ID, "error", err)
			}
		}
		change.Task = NewView(saved, now)
		s.eventBus.PublishNew(eventType, saved.BoardID, userID, change)
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// filterFromQuery reads the list filters of GET /boards/{id}/tasks.
func filterFromQuery(q url.Values) (Filter, error) {
	f := Filter{
		Column:     board.ColumnType(q.Get("column")),
		Type:       q.Get("type"),
		Difficulty: Difficulty(q.Get("difficulty")),
		Priority:   Priority(q.Get("priority")),
		Status:     Status(q.Get("status")),
		AssignedTo: q.Get("assignedTo"),
		Search:     strings.TrimSpace(q.Get("search")),
	}
	switch {
	case f.Column != "" && !f.Column.Valid():
		return f, cerr.InvalidField("column", "in", "unknown column")
	case f.Difficulty != "" && !f.Difficulty.Valid():
		return f, cerr.InvalidField("difficulty", "in", "unknown difficulty")
	case f.Priority != "" && !f.Priority.Valid():
		return f, cerr.InvalidField("priority", "in", "unknown priority")
	case f.Status != "" && !f.Status.Valid():
		return f, cerr.InvalidField("status", "in", "unknown status")
	}
	return f, nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		f, err := filterFromQuery(r.URL.Query())
		if err != nil {
			return nil, err
		}
		return s.ListTasks(ctx, chi.URLParam(r, "id"), f)
	})
}

func (s *Server) handleListArchived(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.ListArchived(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.Stats(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusCreated, func(ctx context.Context) (any, error) {
		var req CreateTaskRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.CreateTask(ctx, &req)
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.GetTask(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		var req UpdateTaskRequest
		if err := cerr.DecodeJSON(r, &req); err != nil {
			return nil, err
		}
		return s.UpdateTask(ctx, chi.URLParam(r, "id"), &req)
	})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		id := chi.URLParam(r, "id")
		if err := s.DeleteTask(ctx, id); err != nil {
			return nil, err
		}
		return map[string]string{"id": id}, nil
	})
}

func (s *Server) handleArchiveTask(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.ArchiveTask(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleRestoreTask(w http.ResponseWriter, r *http.Request) {
	cerr.Respond(r, http.StatusOK, func(ctx context.Context) (any, error) {
		return s.RestoreTask(ctx, chi.URLParam(r, "id"))
	})
}
