package links

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	linkRepo   LinkRepository
	domainRepo DomainRepository
	hostRepo   HostRepository
	statsRepo  StatsRepository
	cache      LinkCache
	generator  CodeGenerator
	cooldown   CooldownGate
	codeLength int
	now        func() time.Time
}

func NewService(
	linkRepo LinkRepository,
	domainRepo DomainRepository,
	hostRepo HostRepository,
	statsRepo StatsRepository,
	cache LinkCache,
	generator CodeGenerator,
	cooldown CooldownGate,
	codeLength int,
) *Service {
	if codeLength <= 0 {
		codeLength = 6
	}

	return &Service{
		linkRepo:   linkRepo,
		domainRepo: domainRepo,
		hostRepo:   hostRepo,
		statsRepo:  statsRepo,
		cache:      cache,
		generator:  generator,
		cooldown:   cooldown,
		codeLength: codeLength,
		now:        time.Now,
	}
}

func (s *Service) CreateLink(ctx context.Context, in CreateLinkInput) (*Link, error) {
	target, err := validateAndNormalizeURL(in.Target)
	if err != nil {
		return nil, ErrInvalidURL
	}

	if err := s.checkTargetHost(ctx, target); err != nil {
		return nil, err
	}

	anonymous := strings.TrimSpace(in.UserID) == ""
	if anonymous {
		if strings.TrimSpace(in.Password) != "" {
			return nil, ErrPasswordNotAllowed
		}
		inCooldown, err := s.cooldown.InCooldown(ctx, in.SourceIP)
		if err != nil {
			return nil, fmt.Errorf("cooldown check: %w", err)
		}
		if inCooldown {
			return nil, ErrRateLimited
		}
	}

	domainID, err := s.domainIDFor(ctx, in.DomainHost)
	if err != nil {
		return nil, err
	}

	link := &Link{
		Target:      target,
		DomainID:    domainID,
		UserID:      strings.TrimSpace(in.UserID),
		Description: strings.TrimSpace(in.Description),
		ExpireIn:    in.ExpireIn,
		CreatedAt:   s.now().UTC(),
		UpdatedAt:   s.now().UTC(),
	}

	if pw := strings.TrimSpace(in.Password); pw != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		link.Password = string(hash)
	}

	if custom := strings.TrimSpace(in.CustomAddress); custom != "" {
		link.Address = custom
		if err := s.linkRepo.Insert(ctx, link); err != nil {
			return nil, err
		}
	} else if err := s.insertWithGeneratedAddress(ctx, link); err != nil {
		return nil, err
	}

	if anonymous {
		if err := s.cooldown.Touch(ctx, in.SourceIP); err != nil {
			return nil, fmt.Errorf("cooldown touch: %w", err)
		}
	}

	return link, nil
}

// insertWithGeneratedAddress retries generation on address collisions. The
// uniqueness constraint in the store is the arbiter; exhausting the retry
// budget means the alphabet/length is saturated or contention is systemic.
func (s *Service) insertWithGeneratedAddress(ctx context.Context, link *Link) error {
	for range MaxGenerateAttempts {
		address, err := s.generator.Generate(s.codeLength)
		if err != nil {
			return err
		}
		link.Address = address

		err = s.linkRepo.Insert(ctx, link)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAddressTaken) {
			continue
		}
		return err
	}

	return ErrGenerationExhausted
}

func (s *Service) UpdateLink(ctx context.Context, domainHost, address string, in UpdateLinkInput) (*Link, error) {
	existing, err := s.GetLink(ctx, domainHost, address)
	if err != nil {
		return nil, err
	}

	if in.Target != nil {
		target, err := validateAndNormalizeURL(*in.Target)
		if err != nil {
			return nil, ErrInvalidURL
		}
		if err := s.checkTargetHost(ctx, target); err != nil {
			return nil, err
		}
		in.Target = &target
	}

	if in.Password != nil && strings.TrimSpace(*in.Password) != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(*in.Password)), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hashed := string(hash)
		in.Password = &hashed
	}

	updated, err := s.linkRepo.Update(ctx, existing.ID, in)
	if err != nil {
		return nil, err
	}

	// A stale cached entry could keep serving the pre-update target for a
	// full TTL; invalidation happens before the caller sees success.
	if err := s.cache.Invalidate(ctx, existing.DomainID, existing.Address); err != nil {
		return nil, fmt.Errorf("invalidate cache: %w", err)
	}

	return updated, nil
}

func (s *Service) DeleteLink(ctx context.Context, domainHost, address string) error {
	existing, err := s.GetLink(ctx, domainHost, address)
	if err != nil {
		return err
	}

	deleted, err := s.linkRepo.Delete(ctx, existing.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	if err := s.cache.Invalidate(ctx, existing.DomainID, existing.Address); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}

	_ = s.statsRepo.Delete(ctx, existing.ID)

	return nil
}

func (s *Service) BanLink(ctx context.Context, domainHost, address, bannedByID string) (*Link, error) {
	existing, err := s.GetLink(ctx, domainHost, address)
	if err != nil {
		return nil, err
	}

	banned, err := s.linkRepo.SetBanned(ctx, existing.ID, bannedByID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, existing.DomainID, existing.Address); err != nil {
		return nil, fmt.Errorf("invalidate cache: %w", err)
	}

	return banned, nil
}

func (s *Service) GetLink(ctx context.Context, domainHost, address string) (*Link, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrNotFound
	}
	domainID, err := s.domainIDFor(ctx, domainHost)
	if err != nil {
		return nil, err
	}
	return s.linkRepo.FindByAddress(ctx, domainID, address)
}

func (s *Service) GetStats(ctx context.Context, domainHost, address string) (*VisitStats, error) {
	link, err := s.GetLink(ctx, domainHost, address)
	if err != nil {
		return nil, err
	}

	stats, err := s.statsRepo.Get(ctx, link.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No visits yet: an empty stats document, not an error.
			return &VisitStats{LinkID: link.ID}, nil
		}
		return nil, err
	}

	return stats, nil
}

// domainIDFor maps an optional custom-domain host to its id; an empty host
// means the default domain scope.
func (s *Service) domainIDFor(ctx context.Context, domainHost string) (string, error) {
	if strings.TrimSpace(domainHost) == "" {
		return "", nil
	}
	domain, err := s.domainRepo.FindByHost(ctx, normalizeHost(domainHost))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrDomainNotFound
		}
		return "", err
	}
	return domain.ID, nil
}

func (s *Service) checkTargetHost(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return ErrInvalidURL
	}

	host, err := s.hostRepo.FindByAddress(ctx, normalizeHost(u.Host))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if host.Banned {
		return ErrBannedTarget
	}
	return nil
}

func validateAndNormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", ErrInvalidURL
	}

	u.Fragment = ""
	return u.String(), nil
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.TrimPrefix(host, "www.")
}
