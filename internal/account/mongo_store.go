package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a MongoDB-backed Store.
type MongoStore struct {
	accounts *mongo.Collection
}

// NewMongoStore creates a store over the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{accounts: db.Collection("accounts")}
}

func (s *MongoStore) Get(ctx context.Context, subjectID string) (*Account, error) {
	var acct Account
	err := s.accounts.FindOne(ctx, bson.M{"_id": normalize(subjectID)}).Decode(&acct)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acct, nil
}

func (s *MongoStore) Upsert(ctx context.Context, acct *Account) error {
	if acct.SubjectID == "" {
		return ErrEmptySubject
	}

	cp := *acct
	cp.SubjectID = normalize(acct.SubjectID)
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	if _, err := s.accounts.ReplaceOne(ctx, bson.M{"_id": cp.SubjectID}, &cp, opts); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// Ban performs the active→banned transition as a single conditional update
// so concurrent triggers produce exactly one transition.
func (s *MongoStore) Ban(ctx context.Context, subjectID, reason string) (bool, error) {
	if subjectID == "" {
		return false, ErrEmptySubject
	}

	key := normalize(subjectID)
	now := time.Now().UTC()

	// Existing active account: conditional flip.
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": key, "status": bson.M{"$ne": StatusBanned}},
		bson.M{"$set": bson.M{
			"status":    StatusBanned,
			"banReason": reason,
			"bannedAt":  now,
			"updatedAt": now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("ban account: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}

	// No active document matched: create it banned, or observe an
	// existing banned one.
	ins, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$setOnInsert": bson.M{
			"status":    StatusBanned,
			"banReason": reason,
			"bannedAt":  now,
			"createdAt": now,
			"updatedAt": now,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// A concurrent creator won the upsert race; the subject is banned.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("ban account upsert: %w", err)
	}
	return ins.UpsertedCount == 1, nil
}

func (s *MongoStore) AppendLogin(ctx context.Context, subjectID string, rec LoginRecord) error {
	if subjectID == "" {
		return ErrEmptySubject
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	now := time.Now().UTC()
	_, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": normalize(subjectID)},
		bson.M{
			"$push": bson.M{"loginHistory": bson.M{
				"$each":  []LoginRecord{rec},
				"$slice": -LoginHistoryLimit,
			}},
			"$set": bson.M{
				"lastLoginIp":  rec.IP,
				"lastDeviceId": rec.DeviceID,
				"updatedAt":    now,
			},
			"$setOnInsert": bson.M{
				"status":    StatusActive,
				"createdAt": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("append login: %w", err)
	}
	return nil
}

func (s *MongoStore) RecentLoginIPs(ctx context.Context, subjectID string, window time.Duration) ([]string, error) {
	acct, err := s.Get(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-window)
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range acct.LoginHistory {
		if rec.CreatedAt.After(cutoff) && rec.IP != "" {
			if _, dup := seen[rec.IP]; !dup {
				seen[rec.IP] = struct{}{}
				out = append(out, rec.IP)
			}
		}
	}
	return out, nil
}
