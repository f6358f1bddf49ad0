package mongo

import (
	"context"
	"time"

	"github.com/vlourenco/atalho/internal/infrastructure/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IPsRepository backs the anonymous-creation cooldown store.
type IPsRepository struct {
	coll *mongo.Collection
}

func NewIPsRepository(m *db.Mongo) (*IPsRepository, error) {
	repo := &IPsRepository{coll: m.Collection("ips")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ip", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_ip"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("createdAt_asc"),
		},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

// Upsert refreshes the cooldown record for a source without duplicating
// rows. The timestamp reset restarts the sliding window, so a touch racing
// a sweep always wins.
func (r *IPsRepository) Upsert(ctx context.Context, sourceKey string, at time.Time) error {
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"ip": sourceKey},
		bson.M{"$set": bson.M{"ip": sourceKey, "createdAt": at.UTC(), "updatedAt": at.UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *IPsRepository) ExistsSince(ctx context.Context, sourceKey string, since time.Time) (bool, error) {
	count, err := r.coll.CountDocuments(
		ctx,
		bson.M{"ip": sourceKey, "createdAt": bson.M{"$gte": since.UTC()}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *IPsRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
