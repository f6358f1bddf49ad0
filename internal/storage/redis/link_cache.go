package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vlourenco/atalho/internal/processing/links"
)

// LinkCache maps (domainID, address) to a serialized link. Entries are a
// non-authoritative copy of store rows: losing them only costs a store read.
type LinkCache struct {
	client *Client
	prefix string
}

type cachedLink struct {
	ID          string     `json:"id"`
	Address     string     `json:"address"`
	Target      string     `json:"target"`
	DomainID    string     `json:"domainId,omitempty"`
	UserID      string     `json:"userId,omitempty"`
	Password    string     `json:"password,omitempty"`
	Description string     `json:"description,omitempty"`
	ExpireIn    *time.Time `json:"expireIn,omitempty"`
	Banned      bool       `json:"banned,omitempty"`
	BannedByID  string     `json:"bannedById,omitempty"`
	VisitCount  int64      `json:"visitCount,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func NewLinkCache(client *Client, prefix string) *LinkCache {
	if prefix == "" {
		prefix = "link"
	}
	return &LinkCache{client: client, prefix: prefix}
}

func (c *LinkCache) Get(ctx context.Context, domainID, address string) (*links.Link, error) {
	raw, found, err := c.client.Get(ctx, c.key(domainID, address))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, links.ErrCacheMiss
	}

	var doc cachedLink
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		// Corrupt entry: drop it and let the caller refetch.
		_, _ = c.client.Del(ctx, c.key(domainID, address))
		return nil, links.ErrCacheMiss
	}

	return &links.Link{
		ID:          doc.ID,
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
	}, nil
}

func (c *LinkCache) Set(ctx context.Context, domainID, address string, link *links.Link, ttl time.Duration) error {
	doc := cachedLink{
		ID:          link.ID,
		Address:     link.Address,
		Target:      link.Target,
		DomainID:    link.DomainID,
		UserID:      link.UserID,
		Password:    link.Password,
		Description: link.Description,
		ExpireIn:    link.ExpireIn,
		Banned:      link.Banned,
		BannedByID:  link.BannedByID,
		VisitCount:  link.VisitCount,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	return c.client.SetPX(ctx, c.key(domainID, address), string(payload), ttl)
}

func (c *LinkCache) Invalidate(ctx context.Context, domainID, address string) error {
	_, err := c.client.Del(ctx, c.key(domainID, address))
	return err
}

func (c *LinkCache) key(domainID, address string) string {
	return c.prefix + ":" + domainID + ":" + address
}
