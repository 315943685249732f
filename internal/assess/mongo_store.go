package assess

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAuditStore is a MongoDB-backed AuditStore.
type MongoAuditStore struct {
	assessments *mongo.Collection
}

// NewMongoAuditStore creates a store over the given database.
func NewMongoAuditStore(db *mongo.Database) *MongoAuditStore {
	return &MongoAuditStore{assessments: db.Collection("assessments")}
}

func (s *MongoAuditStore) Record(ctx context.Context, a *Assessment) error {
	if _, err := s.assessments.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *MongoAuditStore) List(ctx context.Context, filter ListFilter) ([]*Assessment, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := bson.M{}
	if filter.Flow != "" {
		query["flow"] = filter.Flow
	}
	if filter.SuspiciousOnly {
		query["$or"] = []bson.M{
			{"decision": DecisionBlock},
			{"flagged": true},
		}
	}
	if filter.After != nil {
		query["$and"] = []bson.M{{"$or": []bson.M{
			{"createdAt": bson.M{"$lt": filter.After.CreatedAt}},
			{"createdAt": filter.After.CreatedAt, "_id": bson.M{"$lt": filter.After.ID}},
		}}}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.assessments.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer cur.Close(ctx)

	var out []*Assessment
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode assessments: %w", err)
	}
	return out, nil
}
