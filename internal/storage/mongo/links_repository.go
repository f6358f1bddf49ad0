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

type LinksRepository struct {
	coll *mongo.Collection
}

type linkDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Address     string             `bson:"address"`
	Target      string             `bson:"target"`
	DomainID    string             `bson:"domainId"` // "" = default domain scope
	UserID      string             `bson:"userId,omitempty"`
	Password    string             `bson:"password,omitempty"`
	Description string             `bson:"description,omitempty"`
	ExpireIn    *time.Time         `bson:"expireIn,omitempty"`
	Banned      bool               `bson:"banned,omitempty"`
	BannedByID  string             `bson:"bannedById,omitempty"`
	VisitCount  int64              `bson:"visitCount,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func NewLinksRepository(m *db.Mongo) (*LinksRepository, error) {
	repo := &LinksRepository{coll: m.Collection("links")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// domainId is always present ("" for the default domain) so the compound
	// unique index covers the global scope too.
	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "domainId", Value: 1}, {Key: "address", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_domain_address"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_createdAt_desc"),
		},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *links.Link) error {
	doc := linkDoc{
		Address:     link.Address,
		Target:      link.Target,
		DomainID:    link.DomainID,
		UserID:      link.UserID,
		Password:    link.Password,
		Description: link.Description,
		ExpireIn:    link.ExpireIn,
		CreatedAt:   link.CreatedAt.UTC(),
		UpdatedAt:   link.UpdatedAt.UTC(),
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return links.ErrAddressTaken
		}
		return err
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		link.ID = oid.Hex()
	}
	return nil
}

func (r *LinksRepository) FindByAddress(ctx context.Context, domainID, address string) (*links.Link, error) {
	var doc linkDoc
	err := r.coll.FindOne(ctx, bson.M{"domainId": domainID, "address": address}).Decode(&doc)
	if err == nil {
		return mapLinkDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

func (r *LinksRepository) Update(ctx context.Context, id string, in links.UpdateLinkInput) (*links.Link, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, links.ErrNotFound
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	unset := bson.M{}
	if in.Target != nil {
		set["target"] = *in.Target
	}
	if in.Description != nil {
		set["description"] = *in.Description
	}
	if in.ExpireIn != nil {
		if in.ExpireIn.IsZero() {
			unset["expireIn"] = ""
		} else {
			set["expireIn"] = in.ExpireIn.UTC()
		}
	}
	if in.Password != nil {
		if *in.Password == "" {
			unset["password"] = ""
		} else {
			set["password"] = *in.Password
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var doc linkDoc
	err = r.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, links.ErrNotFound
		}
		return nil, err
	}

	return mapLinkDoc(doc), nil
}

func (r *LinksRepository) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *LinksRepository) SetBanned(ctx context.Context, id, bannedByID string) (*links.Link, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, links.ErrNotFound
	}

	var doc linkDoc
	err = r.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"banned":     true,
			"bannedById": bannedByID,
			"updatedAt":  time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, links.ErrNotFound
		}
		return nil, err
	}

	return mapLinkDoc(doc), nil
}

// IncrementVisitCount is a row-level atomic $inc; the request handler never
// does read-modify-write on the counter.
func (r *LinksRepository) IncrementVisitCount(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return links.ErrNotFound
	}

	_, err = r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$inc": bson.M{"visitCount": 1}})
	return err
}

func mapLinkDoc(doc linkDoc) *links.Link {
	return &links.Link{
		ID:          doc.ID.Hex(),
		Address:     doc.Address,
		Target:      doc.Target,
		DomainID:    doc.DomainID,
		UserID:      doc.UserID,
		Password:    doc.Password,
		Description: doc.Description,
		ExpireIn:    doc.ExpireIn,
		Banned:      doc.Banned,
		BannedByID:  doc.BannedByID,
		VisitCount:  doc.VisitCount,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
