package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/vlourenco/atalho/internal/infrastructure/db"
	"github.com/vlourenco/atalho/internal/processing/links"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type HostsRepository struct {
	coll *mongo.Collection
}

type hostDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Address    string             `bson:"address"`
	Banned     bool               `bson:"banned,omitempty"`
	BannedByID string             `bson:"bannedById,omitempty"`
}

func NewHostsRepository(m *db.Mongo) (*HostsRepository, error) {
	repo := &HostsRepository{coll: m.Collection("hosts")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "address", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_address"),
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *HostsRepository) FindByAddress(ctx context.Context, address string) (*links.Host, error) {
	var doc hostDoc
	err := r.coll.FindOne(ctx, bson.M{"address": address}).Decode(&doc)
	if err == nil {
		return &links.Host{
			ID:         doc.ID.Hex(),
			Address:    doc.Address,
			Banned:     doc.Banned,
			BannedByID: doc.BannedByID,
		}, nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

// SetBanned records the hostname as a banned destination, inserting it if it
// was never seen before.
func (r *HostsRepository) SetBanned(ctx context.Context, address, bannedByID string) error {
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"address": address},
		bson.M{
			"$set":         bson.M{"banned": true, "bannedById": bannedByID},
			"$setOnInsert": bson.M{"address": address},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
