// Package mongostore holds the MongoDB plumbing shared by the document-store
// repositories.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kazz187/prepboard/pkg/cerr"
)

const connectTimeout = 10 * time.Second

// Connect dials uri, verifies the primary is reachable and returns the named
// database together with a disconnect func.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client.Database(database), client.Disconnect, nil
}

// EnsureIndexes creates the given indexes on coll. Creating an index that
// already exists with the same keys and options is a no-op on the server.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
	}
	return nil
}

func WrapReadError(target string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to read %s: %w", target, err))
}

func WrapWriteError(target string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("%s already exists", target), err)
	}
	return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to write %s: %w", target, err))
}

func WrapDeleteError(target string, err error) error {
	return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to delete %s: %w", target, err))
}
