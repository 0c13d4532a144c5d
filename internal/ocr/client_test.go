package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"casepilot/internal/pipelineerr"
)

func TestExtractSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/extract", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello world","page_count":2}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := client.Extract(context.Background(), "doc.pdf", []byte("fake-bytes"))
	require.NoError(t, err)
	require.Equal(t, "hello world", result.Text)
	require.Equal(t, 2, result.PageCount)
}

func TestExtractCorruptDocumentIsExternalPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)
	require.True(t, pipelineerr.Is(err, pipelineerr.CodeExternalPermanent))
}

func TestExtractServerErrorIsExternalTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)
	require.True(t, pipelineerr.Is(err, pipelineerr.CodeExternalTransient))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}
