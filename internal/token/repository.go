package token

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is the persistence surface the gateway and maintenance job need.
// Implemented by MongoRepository; tests substitute a fake.
type Repository interface {
	FindByUserIDs(ctx context.Context, userIDs []string) ([]PushToken, error)
	FindByUserID(ctx context.Context, userID string) ([]PushToken, error)
	FindActive(ctx context.Context) ([]PushToken, error)
	Upsert(ctx context.Context, rec PushToken) error
	DeactivateDevice(ctx context.Context, userID, deviceID, keepToken string) error
	DeactivateByToken(ctx context.Context, token, reason string) error
	DeactivateMatching(ctx context.Context, filter DeactivateFilter, reason string) (int64, error)
	UpdateLastUsed(ctx context.Context, tokens []string, when time.Time) error
	UpdateHealthScore(ctx context.Context, token string, score int) error
	DeactivateUnusedSince(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int64, error)
	CountAll(ctx context.Context) ([]PushToken, error)
}

// DeactivateFilter selects tokens for the delete endpoint. Exactly one field
// should be set.
type DeactivateFilter struct {
	TokenID string
	Token   string
	UserID  string
}

// MongoRepository persists push tokens in the push_tokens collection.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a repository over the given collection handle.
func NewMongoRepository(coll *mongo.Collection) *MongoRepository {
	return &MongoRepository{coll: coll}
}

var _ Repository = (*MongoRepository)(nil)

// FindByUserIDs fetches all token records for the given user ids.
func (r *MongoRepository) FindByUserIDs(ctx context.Context, userIDs []string) ([]PushToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"userId": bson.M{"$in": userIDs}})
}

// FindByUserID fetches all token records for one user.
func (r *MongoRepository) FindByUserID(ctx context.Context, userID string) ([]PushToken, error) {
	return r.find(ctx, bson.M{"userId": userID})
}

// FindActive fetches every active token record.
func (r *MongoRepository) FindActive(ctx context.Context) ([]PushToken, error) {
	return r.find(ctx, bson.M{"isActive": true})
}

// CountAll fetches every token record for analytics aggregation.
func (r *MongoRepository) CountAll(ctx context.Context) ([]PushToken, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M) ([]PushToken, error) {
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find push tokens: %w", err)
	}
	var records []PushToken
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode push tokens: %w", err)
	}
	return records, nil
}

// Upsert inserts or refreshes a token record keyed by the token value.
func (r *MongoRepository) Upsert(ctx context.Context, rec PushToken) error {
	update := bson.M{
		"$set": bson.M{
			"userId":      rec.UserID,
			"userType":    rec.UserType,
			"platform":    rec.Platform,
			"deviceId":    rec.DeviceID,
			"deviceName":  rec.DeviceName,
			"appVersion":  rec.AppVersion,
			"isActive":    true,
			"healthScore": rec.HealthScore,
			"lastUsed":    rec.LastUsed,
		},
		"$setOnInsert": bson.M{
			"createdAt": rec.CreatedAt,
		},
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"token": rec.Token}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

// DeactivateDevice deactivates prior active tokens for the same physical
// device, keeping the freshly registered token value intact.
func (r *MongoRepository) DeactivateDevice(ctx context.Context, userID, deviceID, keepToken string) error {
	if deviceID == "" {
		return nil
	}
	filter := bson.M{
		"userId":   userID,
		"deviceId": deviceID,
		"isActive": true,
		"token":    bson.M{"$ne": keepToken},
	}
	_, err := r.coll.UpdateMany(ctx, filter, deactivateUpdate("superseded by new registration", time.Now()))
	if err != nil {
		return fmt.Errorf("deactivate device tokens: %w", err)
	}
	return nil
}

// DeactivateByToken deactivates one token and appends a reason to its audit trail.
func (r *MongoRepository) DeactivateByToken(ctx context.Context, token, reason string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"token": token}, deactivateUpdate(reason, time.Now()))
	if err != nil {
		return fmt.Errorf("deactivate token: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("token not found")
	}
	return nil
}

// DeactivateMatching deactivates all tokens matched by the filter.
func (r *MongoRepository) DeactivateMatching(ctx context.Context, filter DeactivateFilter, reason string) (int64, error) {
	var query bson.M
	switch {
	case filter.TokenID != "":
		query = bson.M{"_id": filter.TokenID}
	case filter.Token != "":
		query = bson.M{"token": filter.Token}
	case filter.UserID != "":
		query = bson.M{"userId": filter.UserID}
	default:
		return 0, fmt.Errorf("empty deactivate filter")
	}

	res, err := r.coll.UpdateMany(ctx, query, deactivateUpdate(reason, time.Now()))
	if err != nil {
		return 0, fmt.Errorf("deactivate matching tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

// UpdateLastUsed stamps lastUsed on all confirmed tokens after a send.
func (r *MongoRepository) UpdateLastUsed(ctx context.Context, tokens []string, when time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"token": bson.M{"$in": tokens}},
		bson.M{"$set": bson.M{"lastUsed": when}},
	)
	if err != nil {
		return fmt.Errorf("update lastUsed: %w", err)
	}
	return nil
}

// UpdateHealthScore persists a recomputed health score.
func (r *MongoRepository) UpdateHealthScore(ctx context.Context, token string, score int) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{"healthScore": score}},
	)
	if err != nil {
		return fmt.Errorf("update health score: %w", err)
	}
	return nil
}

// DeactivateUnusedSince deactivates active tokens whose lastUsed predates cutoff.
func (r *MongoRepository) DeactivateUnusedSince(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	filter := bson.M{
		"isActive": true,
		"lastUsed": bson.M{"$lt": cutoff},
	}
	res, err := r.coll.UpdateMany(ctx, filter, deactivateUpdate(reason, time.Now()))
	if err != nil {
		return 0, fmt.Errorf("deactivate unused tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

// DeleteInactiveSince hard-deletes tokens that have been inactive since before
// cutoff. The only hard-delete path in the token lifecycle.
func (r *MongoRepository) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"isActive": false,
		"lastUsed": bson.M{"$lt": cutoff},
	}
	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete inactive tokens: %w", err)
	}
	return res.DeletedCount, nil
}

func deactivateUpdate(reason string, at time.Time) bson.M {
	return bson.M{
		"$set":  bson.M{"isActive": false},
		"$push": bson.M{"auditTrail": AuditEntry{Reason: reason, At: at}},
	}
}
