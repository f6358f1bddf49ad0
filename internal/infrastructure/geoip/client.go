package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vlourenco/atalho/pkg/httpclient"
)

// Client resolves source addresses to country codes through an external
// HTTP geolocation API. Failures are soft: the visit pipeline omits the
// country bucket and moves on.
type Client struct {
	http     *httpclient.Client
	endpoint string
	apiKey   string
}

type lookupResponse struct {
	CountryCode string `json:"countryCode"`
}

func New(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &Client{
		http:     httpclient.NewClient(timeout, 5, 30*time.Second),
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
	}
}

func (c *Client) CountryCode(ctx context.Context, ip string) (string, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "", nil
	}

	headers := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		headers["X-API-Key"] = c.apiKey
	}

	resp, err := c.http.Get(ctx, c.endpoint, map[string]string{"ip": ip}, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("geolocation lookup returned status %d", resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode geolocation response: %w", err)
	}

	return strings.ToUpper(strings.TrimSpace(out.CountryCode)), nil
}
