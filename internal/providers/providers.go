// Package providers builds HTTP clients for calling external provider
// APIs on behalf of a connected user. Each client pulls a valid access
// token per request, so callers never see or cache token material.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
)

const clientTimeout = 30 * time.Second

// TokenSource yields a usable token payload for a (user, provider) pair,
// refreshing behind the scenes when needed.
type TokenSource interface {
	GetValidToken(ctx context.Context, userID uuid.UUID, provider domain.Provider) (domain.Payload, error)
}

// bearerTransport injects a fresh bearer token into every outgoing
// request. Acquiring the token per request means a refresh that happened
// mid-session is picked up automatically.
type bearerTransport struct {
	source   TokenSource
	userID   uuid.UUID
	provider domain.Provider
	base     http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	payload, err := t.source.GetValidToken(req.Context(), t.userID, t.provider)
	if err != nil {
		return nil, fmt.Errorf("acquiring %s token: %w", t.provider, err)
	}

	// Per RoundTripper contract the original request is not modified.
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+payload.AccessToken)
	return t.base.RoundTrip(clone)
}

// NewHTTPClient returns a client whose requests carry the user's current
// access token for the provider.
func NewHTTPClient(source TokenSource, userID uuid.UUID, provider domain.Provider) *http.Client {
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &bearerTransport{
			source:   source,
			userID:   userID,
			provider: provider,
			base:     http.DefaultTransport,
		},
	}
}
