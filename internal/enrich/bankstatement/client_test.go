package bankstatement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"casepilot/internal/pipelineerr"
)

func TestAnalyzeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"monthly":[{"month":"2026-06","credit":100000,"debit":40000,"closing_balance":60000},{"month":"2026-07","credit":120000,"debit":50000,"closing_balance":70000}],"bounces_12m":1,"cash_deposit_ratio":0.15}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := client.Analyze(context.Background(), []string{"cases/x/docs/y.pdf"})
	require.NoError(t, err)
	require.Len(t, resp.Monthly, 2)
	require.Equal(t, 1, resp.Bounces12M)
	require.InDelta(t, 110000.0, resp.MonthlyCreditMean(), 0.01)
}

func TestAnalyzeClientErrorIsExternalPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), nil)
	require.Error(t, err)
	require.True(t, pipelineerr.Is(err, pipelineerr.CodeExternalPermanent))
}

func TestMonthlyCreditMeanEmpty(t *testing.T) {
	r := &Response{}
	require.Equal(t, 0.0, r.MonthlyCreditMean())
}
