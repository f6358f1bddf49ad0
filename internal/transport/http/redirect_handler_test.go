package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vlourenco/atalho/internal/config"
	"github.com/vlourenco/atalho/internal/processing/links"
	"golang.org/x/crypto/bcrypt"
)

// --- in-memory collaborators for handler tests ---

type stubLinkRepo struct {
	mu     sync.Mutex
	byKey  map[string]*links.Link
	byID   map[string]*links.Link
	nextID int
}

func newStubLinkRepo() *stubLinkRepo {
	return &stubLinkRepo{byKey: map[string]*links.Link{}, byID: map[string]*links.Link{}}
}

func stubKey(domainID, address string) string { return domainID + "/" + address }

func (r *stubLinkRepo) Insert(_ context.Context, link *links.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stubKey(link.DomainID, link.Address)
	if _, ok := r.byKey[key]; ok {
		return links.ErrAddressTaken
	}
	r.nextID++
	link.ID = "id-" + strings.Repeat("x", r.nextID)
	cp := *link
	r.byKey[key] = &cp
	r.byID[link.ID] = &cp
	return nil
}

func (r *stubLinkRepo) FindByAddress(_ context.Context, domainID, address string) (*links.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.byKey[stubKey(domainID, address)]
	if !ok {
		return nil, links.ErrNotFound
	}
	cp := *link
	return &cp, nil
}

func (r *stubLinkRepo) Update(_ context.Context, id string, in links.UpdateLinkInput) (*links.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.byID[id]
	if !ok {
		return nil, links.ErrNotFound
	}
	if in.Target != nil {
		link.Target = *in.Target
	}
	if in.Description != nil {
		link.Description = *in.Description
	}
	cp := *link
	return &cp, nil
}

func (r *stubLinkRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	delete(r.byKey, stubKey(link.DomainID, link.Address))
	delete(r.byID, id)
	return true, nil
}

func (r *stubLinkRepo) SetBanned(_ context.Context, id, bannedByID string) (*links.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.byID[id]
	if !ok {
		return nil, links.ErrNotFound
	}
	link.Banned = true
	link.BannedByID = bannedByID
	cp := *link
	return &cp, nil
}

func (r *stubLinkRepo) IncrementVisitCount(_ context.Context, id string) error { return nil }

type stubDomainRepo struct{}

func (stubDomainRepo) FindByHost(context.Context, string) (*links.Domain, error) {
	return nil, links.ErrNotFound
}

type stubUserRepo struct {
	byKey map[string]*links.User
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*links.User, error) {
	for _, u := range r.byKey {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, links.ErrNotFound
}

func (r *stubUserRepo) FindByAPIKey(_ context.Context, apiKey string) (*links.User, error) {
	u, ok := r.byKey[apiKey]
	if !ok {
		return nil, links.ErrNotFound
	}
	return u, nil
}

type stubHostRepo struct{}

func (stubHostRepo) FindByAddress(context.Context, string) (*links.Host, error) {
	return nil, links.ErrNotFound
}

type stubStatsRepo struct{}

func (stubStatsRepo) Get(context.Context, string) (*links.VisitStats, error) {
	return nil, links.ErrNotFound
}
func (stubStatsRepo) Delete(context.Context, string) error { return nil }

type stubCache struct{}

func (stubCache) Get(context.Context, string, string) (*links.Link, error) {
	return nil, links.ErrCacheMiss
}
func (stubCache) Set(context.Context, string, string, *links.Link, time.Duration) error { return nil }
func (stubCache) Invalidate(context.Context, string, string) error                      { return nil }

type stubGenerator struct{ n int }

func (g *stubGenerator) Generate(int) (string, error) {
	g.n++
	return "gen" + strings.Repeat("a", g.n), nil
}

type stubCooldown struct{}

func (stubCooldown) InCooldown(context.Context, string) (bool, error) { return false, nil }
func (stubCooldown) Touch(context.Context, string) error              { return nil }

type stubDispatcher struct {
	mu   sync.Mutex
	sent []links.VisitMeta
}

func (d *stubDispatcher) Dispatch(meta links.VisitMeta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, meta)
}

func (d *stubDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *stubDispatcher) last() links.VisitMeta {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return links.VisitMeta{}
	}
	return d.sent[len(d.sent)-1]
}

type routerFixture struct {
	handler    http.Handler
	repo       *stubLinkRepo
	users      *stubUserRepo
	dispatcher *stubDispatcher
}

func newRouterFixture(t *testing.T, mutate ...func(*config.Config)) *routerFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Name = "atalho-test"
	cfg.Shortener.BaseURL = "http://sho.rt"
	cfg.Shortener.DefaultDomain = "sho.rt"
	cfg.Shortener.CodeLength = 6
	cfg.Shortener.RedirectStatus = http.StatusFound
	cfg.Security.AdminAPIKeys = []string{"admin-key"}
	for _, m := range mutate {
		m(cfg)
	}

	f := &routerFixture{
		repo:       newStubLinkRepo(),
		users:      &stubUserRepo{byKey: map[string]*links.User{}},
		dispatcher: &stubDispatcher{},
	}

	svc := links.NewService(
		f.repo, stubDomainRepo{}, stubHostRepo{}, stubStatsRepo{},
		stubCache{}, &stubGenerator{}, stubCooldown{}, cfg.Shortener.CodeLength,
	)
	resolver := links.NewResolver(
		f.repo, stubDomainRepo{}, f.users, stubCache{}, f.dispatcher,
		cfg.Shortener.DefaultDomain, time.Minute,
	)

	f.handler = NewRouterWithOptions(cfg, RouterDeps{
		LinkService: svc,
		Resolver:    resolver,
		Users:       f.users,
	}, RouterOptions{})

	return f
}

func (f *routerFixture) seed(t *testing.T, link *links.Link) *links.Link {
	t.Helper()
	if err := f.repo.Insert(context.Background(), link); err != nil {
		t.Fatalf("seed link: %v", err)
	}
	return link
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	req.Host = "sho.rt"
	req.RemoteAddr = "203.0.113.9:51234"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Error
}

// --- redirect routes ---

func TestRedirect_ActiveLink(t *testing.T) {
	f := newRouterFixture(t)
	f.seed(t, &links.Link{Address: "go", Target: "https://example.com/landing"})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/go", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/landing" {
		t.Errorf("Location = %q", loc)
	}
	if f.dispatcher.count() != 1 {
		t.Errorf("dispatched visits = %d, want 1", f.dispatcher.count())
	}
}

func TestRedirect_ForwardedClientIP(t *testing.T) {
	f := newRouterFixture(t, func(cfg *config.Config) {
		cfg.Security.TrustProxyHeaders = true
	})
	f.seed(t, &links.Link{Address: "go", Target: "https://example.com/landing"})

	req := httptest.NewRequest(http.MethodGet, "/go", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.2")
	rec := f.do(req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if ip := f.dispatcher.last().RemoteIP; ip != "198.51.100.7" {
		t.Errorf("visit RemoteIP = %q, want forwarded client 198.51.100.7", ip)
	}
}

func TestRedirect_UnknownAddress(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := decodeError(t, rec); code != "LINK_NOT_FOUND" {
		t.Errorf("error code = %q", code)
	}
}

func TestRedirect_ExpiredLooksLikeMissing(t *testing.T) {
	f := newRouterFixture(t)
	past := time.Now().Add(-time.Hour)
	f.seed(t, &links.Link{Address: "old", Target: "https://example.com", ExpireIn: &past})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/old", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if f.dispatcher.count() != 0 {
		t.Error("expired link recorded a visit")
	}
}

func TestRedirect_BannedLink(t *testing.T) {
	f := newRouterFixture(t)
	f.seed(t, &links.Link{Address: "bad", Target: "https://example.com", Banned: true})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/bad", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := decodeError(t, rec); code != "BANNED" {
		t.Errorf("error code = %q", code)
	}
}

func TestRedirect_ProtectedLinkPrompts(t *testing.T) {
	f := newRouterFixture(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("open-sesame"), bcrypt.MinCost)
	f.seed(t, &links.Link{Address: "vault", Target: "https://example.com", Password: string(hash)})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/vault", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := decodeError(t, rec); code != "PASSWORD_REQUIRED" {
		t.Errorf("error code = %q", code)
	}
}

func TestProtected_CorrectPassword(t *testing.T) {
	f := newRouterFixture(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("open-sesame"), bcrypt.MinCost)
	f.seed(t, &links.Link{Address: "vault", Target: "https://example.com/secret", Password: string(hash)})

	body := bytes.NewBufferString(`{"password":"open-sesame"}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/vault/protected", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Target string `json:"target"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Target != "https://example.com/secret" {
		t.Errorf("target = %q", resp.Data.Target)
	}
	if f.dispatcher.count() != 1 {
		t.Errorf("dispatched visits = %d, want 1", f.dispatcher.count())
	}
}

func TestProtected_WrongPassword(t *testing.T) {
	f := newRouterFixture(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("open-sesame"), bcrypt.MinCost)
	f.seed(t, &links.Link{Address: "vault", Target: "https://example.com", Password: string(hash)})

	body := bytes.NewBufferString(`{"password":"wrong"}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/vault/protected", body))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := decodeError(t, rec); code != "PASSWORD_MISMATCH" {
		t.Errorf("error code = %q", code)
	}
	if f.dispatcher.count() != 0 {
		t.Error("failed password attempt recorded a visit")
	}
}

func TestProtected_MissingPassword(t *testing.T) {
	f := newRouterFixture(t)

	body := bytes.NewBufferString(`{}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/vault/protected", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHomepage_DefaultDomain(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
