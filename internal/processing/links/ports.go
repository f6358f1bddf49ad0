package links

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("link not found")
	ErrDomainNotFound      = errors.New("domain not found")
	ErrAddressTaken        = errors.New("address taken")
	ErrGenerationExhausted = errors.New("code generation exhausted")
	ErrRateLimited         = errors.New("anonymous cooldown active")
	ErrBannedTarget        = errors.New("target host banned")
	ErrInvalidURL          = errors.New("invalid url")
	ErrPasswordNotAllowed  = errors.New("password not allowed for anonymous links")
	ErrCacheMiss           = errors.New("cache miss")
)

type LinkRepository interface {
	// Insert persists the link, returning ErrAddressTaken when the
	// (domainID, address) pair already exists.
	Insert(ctx context.Context, link *Link) error
	FindByAddress(ctx context.Context, domainID, address string) (*Link, error)
	Update(ctx context.Context, id string, in UpdateLinkInput) (*Link, error)
	Delete(ctx context.Context, id string) (bool, error)
	SetBanned(ctx context.Context, id, bannedByID string) (*Link, error)
	IncrementVisitCount(ctx context.Context, id string) error
}

type DomainRepository interface {
	FindByHost(ctx context.Context, host string) (*Domain, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByAPIKey(ctx context.Context, apiKey string) (*User, error)
}

type HostRepository interface {
	FindByAddress(ctx context.Context, address string) (*Host, error)
}

type StatsRepository interface {
	Get(ctx context.Context, linkID string) (*VisitStats, error)
	Delete(ctx context.Context, linkID string) error
}

// LinkCache is a disposable read-through cache over link lookups. Get
// returns ErrCacheMiss when no entry exists; any other error means the
// cache backend misbehaved and callers fall through to the store.
type LinkCache interface {
	Get(ctx context.Context, domainID, address string) (*Link, error)
	Set(ctx context.Context, domainID, address string, link *Link, ttl time.Duration) error
	Invalidate(ctx context.Context, domainID, address string) error
}

type CodeGenerator interface {
	Generate(length int) (string, error)
}

// CooldownGate guards anonymous link creation.
type CooldownGate interface {
	InCooldown(ctx context.Context, sourceKey string) (bool, error)
	Touch(ctx context.Context, sourceKey string) error
}

// VisitDispatcher hands a visit off to the aggregation pipeline without
// blocking and without reporting failures to the caller.
type VisitDispatcher interface {
	Dispatch(meta VisitMeta)
}
