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

type UsersRepository struct {
	coll *mongo.Collection
}

type userDoc struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	Email  string             `bson:"email"`
	APIKey string             `bson:"apikey,omitempty"`
	Banned bool               `bson:"banned,omitempty"`
}

func NewUsersRepository(m *db.Mongo) (*UsersRepository, error) {
	repo := &UsersRepository{coll: m.Collection("users")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		{
			Keys: bson.D{{Key: "apikey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"apikey": bson.M{"$exists": true}}).
				SetName("uniq_apikey"),
		},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *UsersRepository) FindByID(ctx context.Context, id string) (*links.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, links.ErrNotFound
	}

	var doc userDoc
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == nil {
		return mapUserDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

func (r *UsersRepository) FindByAPIKey(ctx context.Context, apiKey string) (*links.User, error) {
	if apiKey == "" {
		return nil, links.ErrNotFound
	}

	var doc userDoc
	err := r.coll.FindOne(ctx, bson.M{"apikey": apiKey}).Decode(&doc)
	if err == nil {
		return mapUserDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

func (r *UsersRepository) SetBanned(ctx context.Context, id string) error {
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

func mapUserDoc(doc userDoc) *links.User {
	return &links.User{
		ID:     doc.ID.Hex(),
		Email:  doc.Email,
		APIKey: doc.APIKey,
		Banned: doc.Banned,
	}
}
