package gstin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"casepilot/internal/pipelineerr"
)

func TestLookupSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/taxpayer/27ABCPE1234F1Z5", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"trade_name":"Acme Traders","constitution":"Proprietorship","principal_place":{"pincode":"400001","state":"MH"},"registration_date":"2020-01-15"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := client.Lookup(context.Background(), "27ABCPE1234F1Z5")
	require.NoError(t, err)
	require.Equal(t, "Acme Traders", resp.TradeName)
	require.Equal(t, "400001", resp.PrincipalPlace.Pincode)
}

func TestLookupNotFoundIsExternalPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "unknown")
	require.Error(t, err)
	require.True(t, pipelineerr.Is(err, pipelineerr.CodeExternalPermanent))
}

func TestLookupServerErrorIsExternalTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "27ABCPE1234F1Z5")
	require.Error(t, err)
	require.True(t, pipelineerr.Is(err, pipelineerr.CodeExternalTransient))
}

func TestBusinessVintageYears(t *testing.T) {
	reg := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	years := BusinessVintageYears(reg, today)
	require.InDelta(t, 5.0, years, 0.01)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}
