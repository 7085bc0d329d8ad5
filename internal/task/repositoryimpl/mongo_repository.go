package repositoryimpl

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kazz187/prepboard/internal/task"
	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/mongostore"
)

const tasksCollection = "tasks"

type MongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	coll := db.Collection(tasksCollection)
	err := mongostore.EnsureIndexes(ctx, coll, []mongo.IndexModel{
		{Keys: bson.D{{Key: "board", Value: 1}}},
		{Keys: bson.D{{Key: "board", Value: 1}, {Key: "column", Value: 1}}},
		{Keys: bson.D{{Key: "board", Value: 1}, {Key: "isArchived", Value: 1}}},
		{Keys: bson.D{{Key: "createdBy", Value: 1}}},
		{Keys: bson.D{{Key: "assignedTo.user", Value: 1}}},
		{Keys: bson.D{{Key: "dueDate", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoRepository{coll: coll}, nil
}

func (r *MongoRepository) Create(ctx context.Context, t *task.Task) error {
	if _, err := r.coll.InsertOne(ctx, t); err != nil {
		return mongostore.WrapWriteError("task", err)
	}
	return nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, mongostore.WrapReadError("task", err)
	}
	return &t, nil
}

func (r *MongoRepository) Update(ctx context.Context, t *task.Task) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": t.ID, "board": t.BoardID}, t)
	if err != nil {
		return mongostore.WrapWriteError("task", err)
	}
	if res.MatchedCount == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mongostore.WrapDeleteError("task", err)
	}
	if res.DeletedCount == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *MongoRepository) ListByBoard(ctx context.Context, boardID string, f task.Filter) ([]*task.Task, error) {
	sort := bson.D{{Key: "column", Value: 1}, {Key: "order", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	if f.Archived {
		sort = bson.D{{Key: "archivedAt", Value: -1}, {Key: "_id", Value: -1}}
	}
	cur, err := r.coll.Find(ctx, filterQuery(boardID, f), options.Find().SetSort(sort))
	if err != nil {
		return nil, mongostore.WrapReadError("tasks", err)
	}
	out := []*task.Task{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongostore.WrapReadError("tasks", err)
	}
	return out, nil
}

func filterQuery(boardID string, f task.Filter) bson.M {
	q := bson.M{"board": boardID, "isArchived": f.Archived}
	if f.Column != "" {
		q["column"] = f.Column
	}
	if f.Type != "" {
		q["type"] = f.Type
	}
	if f.Difficulty != "" {
		q["difficulty"] = f.Difficulty
	}
	if f.Priority != "" {
		q["priority"] = f.Priority
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.AssignedTo != "" {
		q["assignedTo.user"] = f.AssignedTo
	}
	if f.Search != "" {
		re := bson.M{"$regex": regexp.QuoteMeta(f.Search), "$options": "i"}
		q["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
			bson.M{"company": re},
			bson.M{"tags": re},
		}
	}
	return q
}

// BulkUpdatePlacement sends every placement in one unordered BulkWrite. Each
// update is filtered on both id and board.
func (r *MongoRepository) BulkUpdatePlacement(ctx context.Context, boardID string, placements []task.Placement) (int, error) {
	if len(placements) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(placements))
	for _, p := range placements {
		set := bson.M{
			"column":    p.Column,
			"order":     p.Order,
			"status":    p.Status,
			"updatedAt": p.UpdatedAt,
		}
		update := bson.M{"$set": set}
		if p.CompletedAt != nil {
			set["completedAt"] = *p.CompletedAt
		} else {
			update["$unset"] = bson.M{"completedAt": ""}
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": p.TaskID, "board": boardID}).
			SetUpdate(update))
	}
	res, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	written := 0
	if res != nil {
		written = int(res.MatchedCount)
	}
	if err != nil {
		return written, mongostore.WrapWriteError("tasks", err)
	}
	return written, nil
}

func (r *MongoRepository) DeleteByBoard(ctx context.Context, boardID string) error {
	if _, err := r.coll.DeleteMany(ctx, bson.M{"board": boardID}); err != nil {
		return mongostore.WrapDeleteError("tasks", err)
	}
	return nil
}
