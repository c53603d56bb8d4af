package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/platform/config"
)

// mockAdmin provides a minimal credentialAdmin for handler testing
type mockAdmin struct {
	creds        []*domain.Credential
	listErr      error
	setActiveErr error
	lastSet      struct {
		userID   uuid.UUID
		provider domain.Provider
		active   bool
	}
}

func (m *mockAdmin) ListAll(context.Context) ([]*domain.Credential, error) {
	return m.creds, m.listErr
}

func (m *mockAdmin) SetActive(_ context.Context, userID uuid.UUID, provider domain.Provider, active bool) error {
	m.lastSet.userID = userID
	m.lastSet.provider = provider
	m.lastSet.active = active
	return m.setActiveErr
}

// mockPgxPool provides a minimal mock for PostgreSQL health checks
type mockPgxPool struct {
	pingErr error
}

func (m *mockPgxPool) Ping(context.Context) error {
	return m.pingErr
}

// mockRedisClient provides a minimal mock for Redis health checks
type mockRedisClient struct {
	pingErr error
}

func (m *mockRedisClient) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if m.pingErr != nil {
		cmd.SetErr(m.pingErr)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func newTestServer(admin credentialAdmin, db postgresHealthChecker, redis redisHealthChecker) *Server {
	cfg := &config.Config{Port: "8080"}
	return NewServer(cfg, admin, db, redis, clockwork.NewFakeClock())
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleReadiness_AllHealthy(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{}, &mockRedisClient{})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_PostgresDown(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{pingErr: errors.New("connection refused")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"postgres"`)
}

func TestHandleReadiness_RedisDown(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{}, &mockRedisClient{pingErr: errors.New("redis unavailable")})

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"redis"`)
}

func TestHandleReadiness_NoRedisConfigured(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMetrics(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleListCredentials(t *testing.T) {
	tested := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	admin := &mockAdmin{creds: []*domain.Credential{
		{
			ID:       uuid.New(),
			UserID:   uuid.New(),
			Provider: domain.ProviderSchwab,
			// Encrypted payload must never appear in the response.
			EncryptedPayload:    "01deadbeef",
			IsActive:            true,
			Status:              domain.StatusReauthRequired,
			LastError:           "refresh token rejected: invalid_grant",
			ConsecutiveFailures: 0,
			LastTested:          &tested,
			CreatedAt:           tested.Add(-24 * time.Hour),
			UpdatedAt:           tested,
		},
		{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			Provider:  domain.ProviderOpenAI,
			IsActive:  true,
			Status:    domain.StatusActive,
			CreatedAt: tested,
			UpdatedAt: tested,
		},
	}}
	srv := newTestServer(admin, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/credentials", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deadbeef")

	var resp struct {
		Credentials []credentialView `json:"credentials"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Credentials, 2)
	assert.Equal(t, "schwab", resp.Credentials[0].Provider)
	assert.True(t, resp.Credentials[0].NeedsReauth)
	assert.False(t, resp.Credentials[1].NeedsReauth)
}

func TestHandleListCredentials_Empty(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/credentials", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"credentials":[]}`, rec.Body.String())
}

func TestHandleSetActive(t *testing.T) {
	admin := &mockAdmin{}
	srv := newTestServer(admin, &mockPgxPool{}, nil)

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/admin/credentials/"+userID.String()+"/schwab/active",
		strings.NewReader(`{"active":false}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, admin.lastSet.userID)
	assert.Equal(t, domain.ProviderSchwab, admin.lastSet.provider)
	assert.False(t, admin.lastSet.active)
}

func TestHandleSetActive_InvalidUserID(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/credentials/not-a-uuid/schwab/active",
		strings.NewReader(`{"active":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetActive_UnknownProvider(t *testing.T) {
	srv := newTestServer(&mockAdmin{}, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/credentials/"+uuid.NewString()+"/etrade/active",
		strings.NewReader(`{"active":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetActive_NotFound(t *testing.T) {
	admin := &mockAdmin{setActiveErr: domain.ErrCredentialNotFound}
	srv := newTestServer(admin, &mockPgxPool{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/credentials/"+uuid.NewString()+"/coinbase/active",
		strings.NewReader(`{"active":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
