package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/prepboard/internal/task"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/storage"
)

const tasksPrefix = "tasks"

// YAMLRepository stores one YAML document per task. Board scoped queries
// load every document and filter in memory.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", tasksPrefix, id)
}

func decode(data []byte) (*task.Task, error) {
	var t task.Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *YAMLRepository) write(ctx context.Context, t *task.Task) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.WrapMarshalError("task", err)
	}
	if err := r.storage.Write(ctx, path(t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	return nil
}

func (r *YAMLRepository) Create(ctx context.Context, t *task.Task) error {
	exists, err := r.storage.Exists(ctx, path(t.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("task", err)
	}
	t, err := decode(data)
	if err != nil {
		return nil, cerr.WrapUnmarshalError("task", err)
	}
	return t, nil
}

func (r *YAMLRepository) Update(ctx context.Context, t *task.Task) error {
	exists, err := r.storage.Exists(ctx, path(t.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("task", err)
	}
	return nil
}

func (r *YAMLRepository) ListByBoard(ctx context.Context, boardID string, f task.Filter) ([]*task.Task, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := []*task.Task{}
	for _, t := range all {
		if t.BoardID == boardID && f.Match(t) {
			out = append(out, t)
		}
	}
	task.Sort(out, f.Archived)
	return out, nil
}

// BulkUpdatePlacement writes placements one document at a time. Placements
// naming a task of another board, or no task at all, are skipped.
func (r *YAMLRepository) BulkUpdatePlacement(ctx context.Context, boardID string, placements []task.Placement) (int, error) {
	written := 0
	for _, p := range placements {
		t, err := r.Get(ctx, p.TaskID)
		if cerr.IsCode(err, cerr.NotFound) {
			continue
		}
		if err != nil {
			return written, err
		}
		if t.BoardID != boardID {
			continue
		}
		p.Apply(t)
		if err := r.write(ctx, t); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (r *YAMLRepository) DeleteByBoard(ctx context.Context, boardID string) error {
	all, err := r.all(ctx)
	if err != nil {
		return err
	}
	for _, t := range all {
		if t.BoardID != boardID {
			continue
		}
		if err := r.storage.Delete(ctx, path(t.ID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return cerr.WrapStorageDeleteError("task", err)
		}
	}
	return nil
}

func (r *YAMLRepository) all(ctx context.Context) ([]*task.Task, error) {
	all, err := storage.LoadAll(ctx, r.storage, tasksPrefix, decode)
	if err != nil {
		return nil, cerr.WrapStorageReadError("tasks", err)
	}
	return all, nil
}
