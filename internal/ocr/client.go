// Package ocr is an HTTP client for the external OCR engine (spec.md §4.2).
// No example repo in the corpus ships an in-process OCR binding; this
// treats OCR the same way the corpus treats every other heavyweight
// external dependency (GSTIN lookup, bank-statement analysis, LLM) — a
// network service called with the Config/NewClient/context-bound-request
// shape from internal/enrich/gstin, rather than a cgo/tesseract binding.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"casepilot/internal/pipelineerr"
)

// Config configures the OCR engine client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client submits document bytes for text extraction.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Result is the engine's response for one document (`POST {base}/extract`).
type Result struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
}

// DefaultTimeout is the wall-clock budget spec.md §5 assigns OCR calls.
const DefaultTimeout = 120 * time.Second

// NewClient validates cfg and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("ocr: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Extract submits content (the document's raw bytes, named filename) and
// returns full text plus page count. A corrupt or password-protected
// document yields a CodeExternalPermanent error (spec.md §4.2: "on engine
// failure ... set status FAILED with a reason code"); network/5xx errors
// are CodeExternalTransient and retryable by the job runner.
func (c *Client) Extract(ctx context.Context, filename string, content []byte) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("ocr: build form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("ocr: write form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("ocr: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("ocr: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "ocr engine unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.CodeExternalTransient, "ocr engine returned unparseable response", err)
		}
		return &result, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, pipelineerr.New(pipelineerr.CodeExternalPermanent, "document is corrupt or password-protected")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalPermanent, "ocr engine rejected document with status %d", resp.StatusCode)
	default:
		return nil, pipelineerr.Newf(pipelineerr.CodeExternalTransient, "ocr engine returned status %d", resp.StatusCode)
	}
}
