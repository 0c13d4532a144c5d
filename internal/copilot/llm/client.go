// Package llm is an HTTP client for the OpenAI-compatible chat-completions
// endpoint Copilot calls for answer synthesis (spec.md §4.9 step 5),
// grounded on the same Config/NewClient/context-bound-request shape as
// internal/enrich/gstin and internal/enrich/bankstatement.
package llm

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

// Config configures the chat-completions client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Limiter throttles outbound Complete calls per spec.md §5. Nil means
	// unlimited.
	Limiter *rate.Limiter
}

// Client calls the configured LLM provider. A Client with no APIKey is
// still constructible; Configured reports false for it and Complete on it
// returns a CodePrecondition error, so callers can route straight to the
// template fallback (spec.md §4.9 step 6).
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Message is one entry in the chat-completion request, matching the
// provider's {role, content} shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// NewClient fills in defaults for cfg and returns a ready Client. A missing BaseURL or
// APIKey is not an error here: spec.md §4.9 step 6 treats "absent
// credentials" as a normal fallback trigger, not a configuration failure.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    cfg.Limiter,
	}
}

// Configured reports whether the client has enough credentials to attempt
// a call at all.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// Complete sends system+user+history messages and returns the first
// choice's content. ctx should carry the T=30s deadline spec.md §4.9 names.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if !c.Configured() {
		return "", pipelineerr.New(pipelineerr.CodePrecondition, "llm client has no credentials configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", pipelineerr.Wrap(pipelineerr.CodeRateLimited, "llm call rate-limited locally", err)
		}
	}

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "llm provider unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "llm provider returned unparseable response", err)
		}
		if len(payload.Choices) == 0 {
			return "", pipelineerr.New(pipelineerr.CodeExternalTransient, "llm provider returned no choices")
		}
		return payload.Choices[0].Message.Content, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", pipelineerr.New(pipelineerr.CodeRateLimited, "llm provider rate limited the request")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", pipelineerr.Newf(pipelineerr.CodeExternalPermanent, "llm provider rejected request with status %d", resp.StatusCode)
	default:
		return "", pipelineerr.Newf(pipelineerr.CodeExternalTransient, "llm provider returned status %d", resp.StatusCode)
	}
}
