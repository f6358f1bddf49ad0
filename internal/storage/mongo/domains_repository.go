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

type DomainsRepository struct {
	coll *mongo.Collection
}

type domainDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Address  string             `bson:"address"`
	Homepage string             `bson:"homepage,omitempty"`
	UserID   string             `bson:"userId,omitempty"`
	Banned   bool               `bson:"banned,omitempty"`
}

func NewDomainsRepository(m *db.Mongo) (*DomainsRepository, error) {
	repo := &DomainsRepository{coll: m.Collection("domains")}

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

func (r *DomainsRepository) FindByHost(ctx context.Context, host string) (*links.Domain, error) {
	var doc domainDoc
	err := r.coll.FindOne(ctx, bson.M{"address": host}).Decode(&doc)
	if err == nil {
		return mapDomainDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

func (r *DomainsRepository) Insert(ctx context.Context, domain *links.Domain) error {
	doc := domainDoc{
		Address:  domain.Address,
		Homepage: domain.Homepage,
		UserID:   domain.UserID,
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return links.ErrAddressTaken
		}
		return err
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		domain.ID = oid.Hex()
	}
	return nil
}

func (r *DomainsRepository) SetBanned(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return links.ErrNotFound
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"banned": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return links.ErrNotFound
	}
	return nil
}

func mapDomainDoc(doc domainDoc) *links.Domain {
	return &links.Domain{
		ID:       doc.ID.Hex(),
		Address:  doc.Address,
		Homepage: doc.Homepage,
		UserID:   doc.UserID,
		Banned:   doc.Banned,
	}
}
