package links

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Outcome is the closed result set of a resolution attempt. The transport
// layer switches over the concrete types; there is no catch-all.
type Outcome interface {
	outcome()
}

type Redirect struct {
	Target string
	Link   *Link // nil for domain-homepage redirects
}

type NotFound struct{}

type Expired struct {
	Link *Link
}

type BanReason string

const (
	BanReasonLink   BanReason = "link"
	BanReasonUser   BanReason = "user"
	BanReasonDomain BanReason = "domain"
)

type Banned struct {
	Reason BanReason
}

type PasswordRequired struct {
	Address string
	// Mismatch is set when a password was supplied but did not match.
	Mismatch bool
}

func (Redirect) outcome()         {}
func (NotFound) outcome()         {}
func (Expired) outcome()          {}
func (Banned) outcome()           {}
func (PasswordRequired) outcome() {}

// Resolver turns an inbound (host, address) pair into an Outcome. Checks run
// cheapest first: existence, then bans, then expiry, then password, so banned
// content never surfaces behind a password prompt and the side-effecting
// visit dispatch only fires on full success.
type Resolver struct {
	linkRepo      LinkRepository
	domainRepo    DomainRepository
	userRepo      UserRepository
	cache         LinkCache
	dispatcher    VisitDispatcher
	defaultDomain string
	cacheTTL      time.Duration
	now           func() time.Time
}

func NewResolver(
	linkRepo LinkRepository,
	domainRepo DomainRepository,
	userRepo UserRepository,
	cache LinkCache,
	dispatcher VisitDispatcher,
	defaultDomain string,
	cacheTTL time.Duration,
) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	return &Resolver{
		linkRepo:      linkRepo,
		domainRepo:    domainRepo,
		userRepo:      userRepo,
		cache:         cache,
		dispatcher:    dispatcher,
		defaultDomain: normalizeHost(defaultDomain),
		cacheTTL:      cacheTTL,
		now:           time.Now,
	}
}

// RequestMeta is the per-request context handed to the visit pipeline.
type RequestMeta struct {
	UserAgent string
	Referrer  string
	RemoteIP  string
}

func (r *Resolver) Resolve(ctx context.Context, host, address, password string, meta RequestMeta) (Outcome, error) {
	address = strings.TrimSpace(address)
	host = normalizeHost(host)

	domainID := ""
	if host != "" && host != r.defaultDomain {
		domain, err := r.domainRepo.FindByHost(ctx, host)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return NotFound{}, nil
			}
			return nil, err
		}
		if domain.Banned {
			return Banned{Reason: BanReasonDomain}, nil
		}
		if address == "" {
			if domain.Homepage != "" {
				return Redirect{Target: domain.Homepage}, nil
			}
			return NotFound{}, nil
		}
		domainID = domain.ID
	}

	if address == "" {
		return NotFound{}, nil
	}

	link, err := r.lookupLink(ctx, domainID, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NotFound{}, nil
		}
		return nil, err
	}

	if link.Banned {
		return Banned{Reason: BanReasonLink}, nil
	}
	if link.UserID != "" {
		user, err := r.userRepo.FindByID(ctx, link.UserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if user != nil && user.Banned {
			return Banned{Reason: BanReasonUser}, nil
		}
	}

	if link.ExpireIn != nil && r.now().UTC().After(link.ExpireIn.UTC()) {
		return Expired{Link: link}, nil
	}

	if link.Protected() {
		if password == "" {
			return PasswordRequired{Address: link.Address}, nil
		}
		if bcrypt.CompareHashAndPassword([]byte(link.Password), []byte(password)) != nil {
			return PasswordRequired{Address: link.Address, Mismatch: true}, nil
		}
	}

	r.dispatcher.Dispatch(VisitMeta{
		LinkID:     link.ID,
		Address:    link.Address,
		DomainID:   link.DomainID,
		UserAgent:  meta.UserAgent,
		Referrer:   meta.Referrer,
		RemoteIP:   meta.RemoteIP,
		OccurredAt: r.now().UTC(),
	})

	return Redirect{Target: link.Target, Link: link}, nil
}

// lookupLink is the read-through path: cache first, store on miss, cache
// population best-effort. Cache backend errors count as misses so a dead
// Redis only costs store latency.
func (r *Resolver) lookupLink(ctx context.Context, domainID, address string) (*Link, error) {
	cached, err := r.cache.Get(ctx, domainID, address)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		logger.Warn("link cache read failed, falling through to store",
			zap.Error(err),
			zap.String("address", address),
		)
	}

	link, err := r.linkRepo.FindByAddress(ctx, domainID, address)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, domainID, address, link, r.cacheTTL); err != nil {
		logger.Warn("link cache populate failed",
			zap.Error(err),
			zap.String("address", address),
		)
	}

	return link, nil
}
