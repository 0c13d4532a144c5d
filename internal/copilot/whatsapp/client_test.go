package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"casepilot/internal/pipelineerr"
)

func TestSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/send", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message_id":"wamid.123","status":"queued"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := client.Send(context.Background(), "+919999999999", "your report is ready")
	require.NoError(t, err)
	require.Equal(t, "wamid.123", result.MessageID)
	require.Equal(t, "queued", result.Status)
}

func TestSendGatewayRejectionIsExternalPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Send(context.Background(), "+919999999999", "hi")
	require.Error(t, err)
	require.True(t, pipelineerr.Is(err, pipelineerr.CodeExternalPermanent))
}

func TestStartSessionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/session", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"qr_code":"data:image/png;base64,abc","session_token":"tok-1"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	session, err := client.StartSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", session.SessionToken)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}
