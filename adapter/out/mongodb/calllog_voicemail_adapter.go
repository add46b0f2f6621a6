// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"calllog_server/core/domain"
	"calllog_server/pkg/apperr"
)

// =============================================================================
// MongoDB Voicemail Adapter
// =============================================================================

const collectionVoicemails = "voicemails"

// VoicemailAdapter implements out.VoicemailStore using MongoDB.
type VoicemailAdapter struct {
	collection *mongo.Collection
}

// NewVoicemailAdapter creates a new MongoDB voicemail adapter.
func NewVoicemailAdapter(db *mongo.Database) *VoicemailAdapter {
	return &VoicemailAdapter{collection: db.Collection(collectionVoicemails)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *VoicemailAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "call_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "modified_at", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// ModifiedSince returns voicemails modified after since, oldest change first.
func (a *VoicemailAdapter) ModifiedSince(ctx context.Context, since int64) ([]domain.Voicemail, error) {
	opts := options.Find().SetSort(bson.D{{Key: "modified_at", Value: 1}})
	cursor, err := a.collection.Find(ctx, bson.M{"modified_at": bson.M{"$gt": since}}, opts)
	if err != nil {
		return nil, apperr.Transient("find voicemails", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Voicemail
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apperr.Transient("decode voicemails", err)
	}
	return out, nil
}

func (a *VoicemailAdapter) HasModifiedSince(ctx context.Context, since int64) (bool, error) {
	n, err := a.collection.CountDocuments(ctx,
		bson.M{"modified_at": bson.M{"$gt": since}},
		options.Count().SetLimit(1))
	if err != nil {
		return false, apperr.Transient("count voicemails", err)
	}
	return n > 0, nil
}

func (a *VoicemailAdapter) ByCallIDs(ctx context.Context, ids []int64) ([]domain.Voicemail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := a.collection.Find(ctx, bson.M{"call_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, apperr.Transient("find voicemails by call id", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Voicemail
	if err := cursor.All(ctx, &out); err != nil {
		return nil, apperr.Transient("decode voicemails", err)
	}
	return out, nil
}

// Save upserts a voicemail by call id.
func (a *VoicemailAdapter) Save(ctx context.Context, vm domain.Voicemail) error {
	_, err := a.collection.ReplaceOne(ctx,
		bson.M{"call_id": vm.CallID},
		vm,
		options.Replace().SetUpsert(true))
	if err != nil {
		return apperr.DatabaseError("save voicemail", err)
	}
	return nil
}
