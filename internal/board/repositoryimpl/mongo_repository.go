package repositoryimpl

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kazz187/prepboard/internal/board"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/mongostore"
)

const boardsCollection = "boards"

type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository ensures the board indexes, including the unique invite
// code index, and returns the repository.
func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	coll := db.Collection(boardsCollection)
	err := mongostore.EnsureIndexes(ctx, coll, []mongo.IndexModel{
		{Keys: bson.D{{Key: "inviteLink", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner", Value: 1}}},
		{Keys: bson.D{{Key: "members.user", Value: 1}}},
		{Keys: bson.D{{Key: "isArchived", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoRepository{coll: coll}, nil
}

func (r *MongoRepository) Create(ctx context.Context, b *board.Board) error {
	if _, err := r.coll.InsertOne(ctx, b); err != nil {
		return mongostore.WrapWriteError("board", err)
	}
	return nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*board.Board, error) {
	return r.findOne(ctx, bson.M{"_id": id}, "board")
}

func (r *MongoRepository) GetByInviteCode(ctx context.Context, code string) (*board.Board, error) {
	return r.findOne(ctx, bson.M{"inviteLink": code}, "invite")
}

func (r *MongoRepository) ListByMember(ctx context.Context, userID string, archived bool) ([]*board.Board, error) {
	return r.find(ctx, bson.M{"members.user": userID, "isArchived": archived})
}

func (r *MongoRepository) List(ctx context.Context) ([]*board.Board, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoRepository) Update(ctx context.Context, b *board.Board) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": b.ID}, b)
	if err != nil {
		return mongostore.WrapWriteError("board", err)
	}
	if res.MatchedCount == 0 {
		return cerr.NewError(cerr.NotFound, "board not found", nil)
	}
	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mongostore.WrapDeleteError("board", err)
	}
	if res.DeletedCount == 0 {
		return cerr.NewError(cerr.NotFound, "board not found", nil)
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M, target string) (*board.Board, error) {
	var b board.Board
	if err := r.coll.FindOne(ctx, filter).Decode(&b); err != nil {
		return nil, mongostore.WrapReadError(target, err)
	}
	return &b, nil
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M) ([]*board.Board, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, mongostore.WrapReadError("boards", err)
	}
	var out []*board.Board
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongostore.WrapReadError("boards", err)
	}
	return out, nil
}
