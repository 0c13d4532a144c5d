// Package bankstatement is an HTTP client for the external bank-statement
// analyzer (spec.md §4.6, §6), following the same validated-Config /
// context-bound-request / JSON-decode shape as internal/enrich/gstin.
package bankstatement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"casepilot/internal/pipelineerr"
)

// Config configures the bank-statement analyzer client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Limiter throttles outbound Analyze calls per spec.md §5. Nil means
	// unlimited.
	Limiter *rate.Limiter
}

// Client submits classified bank-statement document keys for analysis.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// MonthlySummary is one month's aggregate figures.
type MonthlySummary struct {
	Month          string  `json:"month"`
	Credit         float64 `json:"credit"`
	Debit          float64 `json:"debit"`
	ClosingBalance float64 `json:"closing_balance"`
}

// Response is the analyzer's output (`POST /analyze`, spec.md §6).
type Response struct {
	Monthly          []MonthlySummary `json:"monthly"`
	Bounces12M       int              `json:"bounces_12m"`
	CashDepositRatio float64          `json:"cash_deposit_ratio"`
}

type request struct {
	DocumentKeys []string `json:"document_keys"`
}

// NewClient validates cfg and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("bankstatement: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    cfg.Limiter,
	}, nil
}

// Analyze submits the storage keys of one or more classified BANK_STATEMENT
// documents and returns the analyzer's monthly summary.
func (c *Client) Analyze(ctx context.Context, documentKeys []string) (*Response, error) {
	if c == nil {
		return nil, fmt.Errorf("bankstatement: client not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.CodeRateLimited, "bank-statement analyzer rate-limited locally", err)
		}
	}
	body, err := json.Marshal(request{DocumentKeys: documentKeys})
	if err != nil {
		return nil, fmt.Errorf("bankstatement: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bankstatement: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "bank-statement analyzer unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload Response
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "bank-statement analyzer returned unparseable response", err)
		}
		return &payload, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalPermanent, "bank-statement analyzer rejected request with status %d", resp.StatusCode)
	default:
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalTransient, "bank-statement analyzer returned status %d", resp.StatusCode)
	}
}

// MonthlyCreditMean returns the mean monthly credit total across r.Monthly,
// used as monthly_turnover (spec.md §4.5).
func (r *Response) MonthlyCreditMean() float64 {
	if len(r.Monthly) == 0 {
		return 0
	}
	var sum float64
	for _, m := range r.Monthly {
		sum += m.Credit
	}
	return sum / float64(len(r.Monthly))
}
