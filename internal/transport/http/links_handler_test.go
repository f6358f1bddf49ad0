package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vlourenco/atalho/internal/processing/links"
	"github.com/vlourenco/atalho/internal/transport/http/middleware"
)

func decodeLink(t *testing.T, rec *httptest.ResponseRecorder) linkResponse {
	t.Helper()
	var resp struct {
		Code string       `json:"code"`
		Data linkResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return resp.Data
}

func TestCreateLink_Anonymous(t *testing.T) {
	f := newRouterFixture(t)

	body := bytes.NewBufferString(`{"target":"https://example.com/page"}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/links", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}

	link := decodeLink(t, rec)
	if link.Address == "" {
		t.Error("no address generated")
	}
	if !strings.HasPrefix(link.ShortURL, "http://sho.rt/") {
		t.Errorf("shortUrl = %q", link.ShortURL)
	}
	if link.Protected {
		t.Error("anonymous link reported protected")
	}
}

func TestCreateLink_CustomAddress(t *testing.T) {
	f := newRouterFixture(t)

	body := bytes.NewBufferString(`{"target":"https://example.com","customAddress":"promo-2026"}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/links", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if link := decodeLink(t, rec); link.Address != "promo-2026" {
		t.Errorf("address = %q, want promo-2026", link.Address)
	}
}

func TestCreateLink_AddressConflict(t *testing.T) {
	f := newRouterFixture(t)
	f.seed(t, &links.Link{Address: "taken", Target: "https://other.example"})

	body := bytes.NewBufferString(`{"target":"https://example.com","customAddress":"taken"}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/links", body))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := decodeError(t, rec); code != "ADDRESS_TAKEN" {
		t.Errorf("error code = %q", code)
	}
}

func TestCreateLink_InvalidTarget(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing target", `{}`},
		{"blank target", `{"target":"  "}`},
		{"ftp scheme", `{"target":"ftp://example.com"}`},
		{"malformed json", `{"target":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodPost, "/api/links", bytes.NewBufferString(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateLink_BadCustomAddress(t *testing.T) {
	f := newRouterFixture(t)

	body := bytes.NewBufferString(`{"target":"https://example.com","customAddress":"has space"}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/links", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateLink_AnonymousPasswordRejected(t *testing.T) {
	f := newRouterFixture(t)

	body := bytes.NewBufferString(`{"target":"https://example.com","password":"secret"}`)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/links", body))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (%s)", rec.Code, rec.Body.String())
	}
}

func TestCreateLink_AuthenticatedOwner(t *testing.T) {
	f := newRouterFixture(t)
	f.users.byKey["user-key"] = &links.User{ID: "user-1", APIKey: "user-key"}

	body := bytes.NewBufferString(`{"target":"https://example.com","password":"secret-pw"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/links", body)
	req.Header.Set(middleware.APIKeyHeader, "user-key")
	rec := f.do(req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if link := decodeLink(t, rec); !link.Protected {
		t.Error("password-protected link not reported protected")
	}
}

func TestCreateLink_UnknownAPIKey(t *testing.T) {
	f := newRouterFixture(t)

	body := bytes.NewBufferString(`{"target":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/links", body)
	req.Header.Set(middleware.APIKeyHeader, "nobody")
	rec := f.do(req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateLink_BannedUserRejected(t *testing.T) {
	f := newRouterFixture(t)
	f.users.byKey["banned-key"] = &links.User{ID: "user-2", APIKey: "banned-key", Banned: true}

	body := bytes.NewBufferString(`{"target":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/links", body)
	req.Header.Set(middleware.APIKeyHeader, "banned-key")
	rec := f.do(req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestUpdateLink_OwnerOnly(t *testing.T) {
	f := newRouterFixture(t)
	f.users.byKey["owner-key"] = &links.User{ID: "user-1", APIKey: "owner-key"}
	f.users.byKey["other-key"] = &links.User{ID: "user-2", APIKey: "other-key"}
	f.seed(t, &links.Link{Address: "mine", Target: "https://example.com", UserID: "user-1"})

	body := `{"target":"https://example.org/new"}`

	// No credentials.
	rec := f.do(httptest.NewRequest(http.MethodPatch, "/api/links/mine", bytes.NewBufferString(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous update: status = %d, want 401", rec.Code)
	}

	// Someone else's credentials.
	req := httptest.NewRequest(http.MethodPatch, "/api/links/mine", bytes.NewBufferString(body))
	req.Header.Set(middleware.APIKeyHeader, "other-key")
	if rec := f.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign update: status = %d, want 401", rec.Code)
	}

	// The owner.
	req = httptest.NewRequest(http.MethodPatch, "/api/links/mine", bytes.NewBufferString(body))
	req.Header.Set(middleware.APIKeyHeader, "owner-key")
	rec = f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update: status = %d (%s)", rec.Code, rec.Body.String())
	}
	if link := decodeLink(t, rec); link.Target != "https://example.org/new" {
		t.Errorf("target = %q", link.Target)
	}
}

func TestDeleteLink_Owner(t *testing.T) {
	f := newRouterFixture(t)
	f.users.byKey["owner-key"] = &links.User{ID: "user-1", APIKey: "owner-key"}
	f.seed(t, &links.Link{Address: "gone", Target: "https://example.com", UserID: "user-1"})

	req := httptest.NewRequest(http.MethodDelete, "/api/links/gone", nil)
	req.Header.Set(middleware.APIKeyHeader, "owner-key")
	rec := f.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}

	// The address now 404s on the public route.
	rec = f.do(httptest.NewRequest(http.MethodGet, "/gone", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("redirect after delete: status = %d, want 404", rec.Code)
	}
}

func TestStats_RequiresOwnership(t *testing.T) {
	f := newRouterFixture(t)
	f.users.byKey["owner-key"] = &links.User{ID: "user-1", APIKey: "owner-key"}
	f.seed(t, &links.Link{Address: "tracked", Target: "https://example.com", UserID: "user-1"})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/links/tracked/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous stats: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/links/tracked/stats", nil)
	req.Header.Set(middleware.APIKeyHeader, "owner-key")
	rec = f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner stats: status = %d (%s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data statsResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Address != "tracked" || resp.Data.Total != 0 {
		t.Errorf("stats = %+v, want empty document for tracked", resp.Data)
	}
}

func TestBanLink_AdminKeyRequired(t *testing.T) {
	f := newRouterFixture(t)
	f.seed(t, &links.Link{Address: "spam", Target: "https://example.com"})

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/links/spam/ban", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no admin key: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/links/spam/ban", nil)
	req.Header.Set(middleware.APIKeyHeader, "admin-key")
	rec = f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin ban: status = %d (%s)", rec.Code, rec.Body.String())
	}

	// The banned link now serves 403 on the public route.
	rec = f.do(httptest.NewRequest(http.MethodGet, "/spam", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("redirect after ban: status = %d, want 403", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
