// Package store opens the blob storage and document repositories selected by
// the environment. Both the server and the operator CLI go through it.
package store

import (
	"context"
	"fmt"

	"github.com/kazz187/prepboard/internal/board"
	boardrepo "github.com/kazz187/prepboard/internal/board/repositoryimpl"
	"github.com/kazz187/prepboard/internal/config"
	"github.com/kazz187/prepboard/internal/task"
	taskrepo "github.com/kazz187/prepboard/internal/task/repositoryimpl"
	"github.com/kazz187/prepboard/pkg/mongostore"
	"github.com/kazz187/prepboard/pkg/storage"
)

type Stores struct {
	Storage storage.Storage
	Boards  board.Repository
	Tasks   task.Repository
	close   func(context.Context) error
}

// Close releases the document store connection, if any.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

func Open(ctx context.Context, env *config.Env) (*Stores, error) {
	blobs, err := openStorage(ctx, &env.StorageEnv)
	if err != nil {
		return nil, err
	}
	stores := &Stores{Storage: blobs}

	switch env.StoreEnv.Type {
	case "mongo":
		db, disconnect, err := mongostore.Connect(ctx, env.MongoURI, env.MongoDatabase)
		if err != nil {
			return nil, err
		}
		boards, err := boardrepo.NewMongoRepository(ctx, db)
		if err != nil {
			_ = disconnect(ctx)
			return nil, err
		}
		tasks, err := taskrepo.NewMongoRepository(ctx, db)
		if err != nil {
			_ = disconnect(ctx)
			return nil, err
		}
		stores.Boards, stores.Tasks, stores.close = boards, tasks, disconnect
	default:
		stores.Boards = boardrepo.NewYAMLRepository(blobs)
		stores.Tasks = taskrepo.NewYAMLRepository(blobs)
	}
	return stores, nil
}

func openStorage(ctx context.Context, env *config.StorageEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		s, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return s, nil
	}
}
