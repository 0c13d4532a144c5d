package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"casepilot/internal/store"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := store.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	require.NoError(t, store.AutoMigrateCounter(db))
	return db
}

func newTestServer(t *testing.T, authSecret string) (*Server, *Authenticator) {
	t.Helper()
	db := setupTestDB(t)
	var auth *Authenticator
	if authSecret != "" {
		auth = NewAuthenticator(authSecret, "role")
	}
	s := New(Config{DB: db, Authenticator: auth})
	return s, auth
}

func bearerToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestCreateCaseWithoutAuthenticator(t *testing.T) {
	s, _ := newTestServer(t, "")

	body, _ := json.Marshal(createCaseRequest{BorrowerName: "Acme Traders", ProgramType: "MSME"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createCaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.CaseID, "CASE-")
	require.Equal(t, string(store.CaseStatusCreated), resp.Status)
}

func TestCreateCaseRejectsMissingBorrowerName(t *testing.T) {
	s, _ := newTestServer(t, "")

	body, _ := json.Marshal(createCaseRequest{ProgramType: "MSME"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Error.Message)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t, "test-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	s, _ := newTestServer(t, "test-secret")
	token := bearerToken(t, "test-secret", "operator-1")

	body, _ := json.Marshal(createCaseRequest{BorrowerName: "Acme Traders", ProgramType: "MSME"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestChecklistNotFoundForUnknownCase(t *testing.T) {
	s, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/CASE-20260731-9999/checklist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEligibilityResultsRequirePriorRun(t *testing.T) {
	s, _ := newTestServer(t, "")
	c := store.Case{
		ID:              uuid.New(),
		CaseNumber:      "CASE-20260731-0001",
		OwnerOperatorID: "operator-1",
		BorrowerName:    "Acme Traders",
		Status:          store.CaseStatusCreated,
		ManualOverrides: []byte("{}"),
	}
	require.NoError(t, s.cfg.DB.Create(&c).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/eligibility/case/"+c.CaseNumber+"/results", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthzAlwaysOK(t *testing.T) {
	s, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
