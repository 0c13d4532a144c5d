// Package gstin is an HTTP client for the external GSTIN lookup provider
// (spec.md §4.6, §6), grounded on the teacher's identity.Client shape:
// a validated Config, a context-bound request, bearer auth, JSON decode.
package gstin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"casepilot/internal/pipelineerr"
)

// Config configures the GSTIN lookup client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Limiter throttles outbound Lookup calls per spec.md §5's per-endpoint
	// token bucket. Nil means unlimited.
	Limiter *rate.Limiter
}

// Client fetches canonical taxpayer data for a GSTIN.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// PrincipalPlace is the registered-address portion of a lookup response.
type PrincipalPlace struct {
	Pincode string `json:"pincode"`
	State   string `json:"state"`
}

// Response is the taxpayer payload returned by the provider
// (`GET {base}/taxpayer/{gstin}`, spec.md §6).
type Response struct {
	TradeName           string          `json:"trade_name"`
	ConstitutionOfBusiness string        `json:"constitution"`
	PrincipalPlace       PrincipalPlace  `json:"principal_place"`
	RegistrationDate     string          `json:"registration_date"` // yyyy-mm-dd
}

// NewClient validates cfg and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("gstin: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    cfg.Limiter,
	}, nil
}

// Lookup fetches the taxpayer record for gstin. A 4xx response is an
// external-permanent error (spec.md §7: not found, do not retry); network
// failures and 5xx are external-transient (retryable by the job runner).
func (c *Client) Lookup(ctx context.Context, gstin string) (*Response, error) {
	if c == nil {
		return nil, fmt.Errorf("gstin: client not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.CodeRateLimited, "gstin lookup rate-limited locally", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/taxpayer/%s", c.baseURL, gstin), nil)
	if err != nil {
		return nil, fmt.Errorf("gstin: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "gstin provider unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload Response
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "gstin provider returned unparseable response", err)
		}
		return &payload, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalPermanent, "gstin provider rejected lookup with status %d", resp.StatusCode)
	default:
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalTransient, "gstin provider returned status %d", resp.StatusCode)
	}
}

// BusinessVintageYears computes (today - registrationDate) / 365.25, the
// formula spec.md §4.6 specifies.
func BusinessVintageYears(registrationDate time.Time, today time.Time) float64 {
	return today.Sub(registrationDate).Hours() / 24 / 365.25
}
