package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			"root unchanged",
			"/",
			"/",
		},
		{
			"health unchanged",
			"/health",
			"/health",
		},
		{
			"metrics unchanged",
			"/metrics",
			"/metrics",
		},
		{
			"create route unchanged",
			"/api/links",
			"/api/links",
		},
		{
			"redirect collapses short code",
			"/abc123",
			"/:address",
		},
		{
			"mixed-case code collapses",
			"/xYz9_k",
			"/:address",
		},
		{
			"protected route collapses code",
			"/abc123/protected",
			"/:address/protected",
		},
		{
			"api link route collapses code",
			"/api/links/abc123",
			"/api/links/:address",
		},
		{
			"stats route collapses code",
			"/api/links/abc123/stats",
			"/api/links/:address/stats",
		},
		{
			"ban route collapses code",
			"/api/links/xYz9_k/ban",
			"/api/links/:address/ban",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePath(tt.path)
			if got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestNormalizePathDistinctCodesShareLabel(t *testing.T) {
	for _, path := range []string{"/abc123", "/xYz9_k", "/another1"} {
		if got := normalizePath(path); got != "/:address" {
			t.Errorf("normalizePath(%q) = %q, want /:address", path, got)
		}
	}
}
