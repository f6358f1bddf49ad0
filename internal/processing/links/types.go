package links

import "time"

type Link struct {
	ID          string
	Address     string
	Target      string
	DomainID    string // empty = default domain scope
	UserID      string // empty = anonymous
	Password    string // bcrypt hash, empty = unprotected
	Description string
	ExpireIn    *time.Time
	Banned      bool
	BannedByID  string
	VisitCount  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Protected reports whether the link requires a password before resolving.
func (l *Link) Protected() bool { return l.Password != "" }

type Domain struct {
	ID       string
	Address  string // hostname, globally unique
	Homepage string // redirect target for bare-domain hits
	UserID   string
	Banned   bool
}

type Host struct {
	ID         string
	Address    string // target hostname seen in submitted links
	Banned     bool
	BannedByID string
}

type User struct {
	ID     string
	Email  string
	APIKey string
	Banned bool
}

// VisitStats is the denormalized per-link counter document. Browser and OS
// buckets are closed sets; Countries and Referrers are open maps whose key
// cardinality is capped by the store.
type VisitStats struct {
	LinkID    string           `json:"linkId"`
	Total     int64            `json:"total"`
	Browsers  map[string]int64 `json:"browsers"`
	Systems   map[string]int64 `json:"systems"`
	Countries map[string]int64 `json:"countries"`
	Referrers map[string]int64 `json:"referrers"`
}

// VisitMeta carries the request attributes the aggregation pipeline needs.
// It is detached from the HTTP request so dispatch can outlive the response.
type VisitMeta struct {
	LinkID     string
	Address    string
	DomainID   string
	UserAgent  string
	Referrer   string
	RemoteIP   string
	OccurredAt time.Time
}

type CreateLinkInput struct {
	Target        string
	CustomAddress string
	Password      string
	Description   string
	ExpireIn      *time.Time
	DomainHost    string
	UserID        string // empty = anonymous
	SourceIP      string // cooldown key for anonymous creates
}

// UpdateLinkInput carries partial updates; nil fields are left untouched.
// An empty Password removes protection, and a zero ExpireIn removes the
// expiry, making a time-limited link permanent again.
type UpdateLinkInput struct {
	Target      *string
	Description *string
	ExpireIn    *time.Time
	Password    *string
}
