package velocity

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoStore is a MongoDB-backed EventStore.
type MongoStore struct {
	events  *mongo.Collection
	reasons *mongo.Collection
}

// NewMongoStore creates a store over the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		events:  db.Collection("velocity_events"),
		reasons: db.Collection("ban_audit"),
	}
}

// Append inserts the event document.
func (s *MongoStore) Append(ctx context.Context, ev *FingerprintEvent) error {
	if ev.Fingerprint == "" {
		return ErrEmptyFingerprint
	}
	if _, err := s.events.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("insert fingerprint event: %w", err)
	}
	return nil
}

// CountDistinct aggregates distinct fingerprints inside the window.
func (s *MongoStore) CountDistinct(ctx context.Context, subjectID string, kind EventKind, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"subjectId": subjectID,
			"kind":      kind,
			"createdAt": bson.M{"$gte": cutoff},
		}}},
		{{Key: "$group", Value: bson.M{"_id": "$fingerprint"}}},
		{{Key: "$count", Value: "n"}},
	}

	cur, err := s.events.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("count distinct fingerprints: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		N int32 `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("decode distinct count: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(rows[0].N), nil
}

// AppendBanReason inserts a ban audit document.
func (s *MongoStore) AppendBanReason(ctx context.Context, subjectID, reason string) error {
	doc := BanReason{
		SubjectID: subjectID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.reasons.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert ban reason: %w", err)
	}
	return nil
}
