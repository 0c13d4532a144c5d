// Package whatsapp is a thin client for the WhatsApp gateway used to push
// the report digest (spec.md §4.8/§6) and, optionally, Copilot answers.
// Grounded on the same Config/NewClient/context-bound-request shape as
// internal/enrich/gstin.
package whatsapp

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

// Config configures the WhatsApp gateway client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Limiter throttles outbound Send calls per spec.md §5. Nil means
	// unlimited.
	Limiter *rate.Limiter
}

// Client talks to the gateway's session and send endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Session is returned by StartSession and carries the pairing QR and the
// gateway's session token. Send authorizes with the configured APIKey, not
// with this token.
type Session struct {
	QRCode       string `json:"qr_code"`
	SessionToken string `json:"session_token"`
}

// SendResult is returned by Send.
type SendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// NewClient validates cfg and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("whatsapp: base url required")
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

// StartSession requests a new pairing session (`POST /session`).
func (c *Client) StartSession(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "whatsapp gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalTransient, "whatsapp gateway returned status %d", resp.StatusCode)
	}
	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "whatsapp gateway returned unparseable session", err)
	}
	return &session, nil
}

// Send pushes message to the recipient (`POST /send`).
func (c *Client) Send(ctx context.Context, to, message string) (*SendResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.CodeRateLimited, "whatsapp send rate-limited locally", err)
		}
	}
	body, err := json.Marshal(sendRequest{To: to, Message: message})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "whatsapp gateway unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result SendResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "whatsapp gateway returned unparseable response", err)
		}
		return &result, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalPermanent, "whatsapp gateway rejected send with status %d", resp.StatusCode)
	default:
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalTransient, "whatsapp gateway returned status %d", resp.StatusCode)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
