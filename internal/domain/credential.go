package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExpiryBuffer is the safety margin before token expiry. A token within
// this window of its expires_at is treated as already expired so callers
// never hand out a token that dies mid-request.
const ExpiryBuffer = 5 * time.Minute

// Provider identifies an external account type a user can connect.
type Provider string

const (
	ProviderSchwab   Provider = "schwab"
	ProviderCoinbase Provider = "coinbase"
	ProviderOpenAI   Provider = "openai"
	ProviderClaude   Provider = "claude"
	ProviderGitHub   Provider = "github"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderSchwab, ProviderCoinbase, ProviderOpenAI, ProviderClaude, ProviderGitHub:
		return true
	default:
		return false
	}
}

// UsesRefreshTokens reports whether the provider issues OAuth refresh
// tokens. API-key style providers store a long-lived key in the payload's
// access_token field and never go through the refresh path.
func (p Provider) UsesRefreshTokens() bool {
	switch p {
	case ProviderSchwab, ProviderCoinbase:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a credential.
type Status string

const (
	// StatusActive means the credential is usable as stored.
	StatusActive Status = "active"
	// StatusRefreshing means a refresh is in flight for this row.
	StatusRefreshing Status = "refreshing"
	// StatusReauthRequired means the refresh token is dead and the user
	// must re-authorize. Never retried automatically.
	StatusReauthRequired Status = "reauth_required"
	// StatusError means the last refresh exhausted its retries on
	// transient failures. Retried again on the next maintenance cycle.
	StatusError Status = "error"
)

// Credential is one (user, provider) connection row. Token material lives
// only in EncryptedPayload; everything else is lifecycle metadata.
type Credential struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	Provider            Provider
	EncryptedPayload    string
	IsActive            bool
	Status              Status
	LastError           string
	ConsecutiveFailures int
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastTested          *time.Time
}

// Payload is the decrypted token bundle. It exists only transiently in
// memory and must never be logged or persisted in plaintext.
type Payload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
}

// NeedsRefresh reports whether the payload is within the expiry buffer of
// its expiry (or already past it) as of now.
func (p Payload) NeedsRefresh(now time.Time) bool {
	return !now.Add(ExpiryBuffer).Before(p.ExpiresAt)
}
