package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
)

type stubSource struct {
	payload domain.Payload
	err     error
	calls   int
}

func (s *stubSource) GetValidToken(context.Context, uuid.UUID, domain.Provider) (domain.Payload, error) {
	s.calls++
	return s.payload, s.err
}

func TestHTTPClient_InjectsBearerToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	source := &stubSource{payload: domain.Payload{AccessToken: "AT1", ExpiresAt: time.Now().Add(time.Hour)}}
	client := NewHTTPClient(source, uuid.New(), domain.ProviderSchwab)

	resp, err := client.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer AT1", gotAuth)
	assert.Equal(t, 1, source.calls)
}

func TestHTTPClient_FreshTokenPerRequest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	source := &stubSource{payload: domain.Payload{AccessToken: "AT1"}}
	client := NewHTTPClient(source, uuid.New(), domain.ProviderSchwab)

	for i := 0; i < 3; i++ {
		resp, err := client.Get(ts.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, 3, source.calls)
}

func TestHTTPClient_TokenErrorAbortsRequest(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer ts.Close()

	source := &stubSource{err: domain.ErrReauthRequired}
	client := NewHTTPClient(source, uuid.New(), domain.ProviderSchwab)

	_, err := client.Get(ts.URL) //nolint:bodyclose // request never leaves the transport
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReauthRequired)
	assert.Zero(t, requests, "no request goes out without a token")
}

func TestHTTPClient_OriginalRequestUnmodified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	source := &stubSource{payload: domain.Payload{AccessToken: "AT1"}}
	client := NewHTTPClient(source, uuid.New(), domain.ProviderSchwab)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, req.Header.Get("Authorization"))
}
