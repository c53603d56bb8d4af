// Package refresher exchanges OAuth2 refresh tokens for new token pairs at
// each provider's token endpoint.
//
// Failures are a type-level distinction: HardFailure means the refresh
// token is dead and retrying cannot help; TransientFailure covers network
// faults, timeouts, 5xx responses, and anything unrecognized.
package refresher

import (
	"context"
	"fmt"
	"time"
)

const requestTimeout = 30 * time.Second

// Token is a successful refresh result. RefreshToken always carries a
// usable value: when the provider does not rotate, the previous refresh
// token is carried forward.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// HardFailure is a permanent refresh failure (revoked or expired refresh
// token, invalid_grant). Never retried; the user must re-authorize.
type HardFailure struct {
	Message string
}

func (e *HardFailure) Error() string {
	return fmt.Sprintf("refresh token rejected: %s", e.Message)
}

// TransientFailure is a refresh failure that may succeed on retry.
type TransientFailure struct {
	Message string
	Err     error
}

func (e *TransientFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("refresh failed: %s", e.Message)
}

func (e *TransientFailure) Unwrap() error { return e.Err }

// Refresher exchanges a refresh token for a new token pair. Errors are
// either *HardFailure or *TransientFailure.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}
