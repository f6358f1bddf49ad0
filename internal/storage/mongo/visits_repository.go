package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vlourenco/atalho/internal/infrastructure/db"
	"github.com/vlourenco/atalho/internal/processing/links"
	"github.com/vlourenco/atalho/internal/processing/visits"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// VisitsRepository holds one denormalized counter document per link.
// Country and referrer maps are capped at maxMapKeys distinct keys per link:
// existing keys keep incrementing, new keys past the cap are dropped.
type VisitsRepository struct {
	coll       *mongo.Collection
	maxMapKeys int
}

type visitDoc struct {
	LinkID    string           `bson:"linkId"`
	Total     int64            `bson:"total"`
	Browsers  map[string]int64 `bson:"browsers,omitempty"`
	Systems   map[string]int64 `bson:"os,omitempty"`
	Countries map[string]int64 `bson:"countries,omitempty"`
	Referrers map[string]int64 `bson:"referrers,omitempty"`
	UpdatedAt time.Time        `bson:"updatedAt"`
}

func NewVisitsRepository(m *db.Mongo, maxMapKeys int) (*VisitsRepository, error) {
	if maxMapKeys <= 0 {
		maxMapKeys = 50
	}

	repo := &VisitsRepository{coll: m.Collection("visits"), maxMapKeys: maxMapKeys}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "linkId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_linkId"),
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

// Increment applies one visit. Total and the closed browser/OS buckets go in
// a single atomic upsert, so the bucket sums can never exceed total. The
// open maps follow with capped per-key $inc operations; every operation is
// a row-level atomic update, so concurrent visits are all reflected.
func (r *VisitsRepository) Increment(ctx context.Context, linkID string, d visits.Deltas) error {
	inc := bson.M{"total": 1}
	if d.Browser != "" {
		inc["browsers."+d.Browser] = 1
	}
	if d.System != "" {
		inc["os."+d.System] = 1
	}

	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"linkId": linkID},
		bson.M{
			"$inc":         inc,
			"$set":         bson.M{"updatedAt": time.Now().UTC()},
			"$setOnInsert": bson.M{"linkId": linkID},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}

	if d.Country != "" {
		if err := r.cappedInc(ctx, linkID, "countries", d.Country); err != nil {
			return err
		}
	}
	if d.Referrer != "" {
		if err := r.cappedInc(ctx, linkID, "referrers", sanitizeKey(d.Referrer)); err != nil {
			return err
		}
	}

	return nil
}

// cappedInc increments map entry `field.key`. First attempt matches only
// documents where the key already exists; the fallback admits a new key only
// while the map holds fewer than maxMapKeys entries. A new key against a
// full map matches nothing and the increment is dropped. The cap is
// approximate under concurrency, which is the documented policy.
func (r *VisitsRepository) cappedInc(ctx context.Context, linkID, field, key string) error {
	path := field + "." + key

	res, err := r.coll.UpdateOne(
		ctx,
		bson.M{"linkId": linkID, path: bson.M{"$exists": true}},
		bson.M{"$inc": bson.M{path: 1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	_, err = r.coll.UpdateOne(
		ctx,
		bson.M{
			"linkId": linkID,
			"$expr": bson.M{"$lt": bson.A{
				bson.M{"$size": bson.M{"$objectToArray": bson.M{"$ifNull": bson.A{"$" + field, bson.M{}}}}},
				r.maxMapKeys,
			}},
		},
		bson.M{"$inc": bson.M{path: 1}},
	)
	return err
}

func (r *VisitsRepository) Get(ctx context.Context, linkID string) (*links.VisitStats, error) {
	var doc visitDoc
	err := r.coll.FindOne(ctx, bson.M{"linkId": linkID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, links.ErrNotFound
		}
		return nil, err
	}

	referrers := make(map[string]int64, len(doc.Referrers))
	for k, v := range doc.Referrers {
		referrers[restoreKey(k)] = v
	}

	return &links.VisitStats{
		LinkID:    doc.LinkID,
		Total:     doc.Total,
		Browsers:  doc.Browsers,
		Systems:   doc.Systems,
		Countries: doc.Countries,
		Referrers: referrers,
	}, nil
}

func (r *VisitsRepository) Delete(ctx context.Context, linkID string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"linkId": linkID})
	return err
}

// Dots in map keys would be parsed as nested paths by update operators, so
// referrer hostnames are stored with a placeholder and restored on read.
func sanitizeKey(key string) string {
	return strings.ReplaceAll(key, ".", "[dot]")
}

func restoreKey(key string) string {
	return strings.ReplaceAll(key, "[dot]", ".")
}
