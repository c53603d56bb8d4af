package domain

import "errors"

var (
	// ErrCredentialNotFound is returned when no row exists for a
	// (user, provider) pair.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrStaleCredential is returned by Save when the row was modified
	// since it was loaded (version mismatch). The caller lost a race,
	// most likely against a concurrent OAuth callback, and must reload.
	ErrStaleCredential = errors.New("credential modified concurrently")

	// ErrNotConnected is returned when a caller asks for a token for a
	// provider the user never connected or has disconnected.
	ErrNotConnected = errors.New("provider not connected")

	// ErrReauthRequired signals that the stored refresh token can no
	// longer be used and the user must re-authorize. This is the only
	// error that should drive a "reconnect your account" prompt.
	ErrReauthRequired = errors.New("reauthorization required")

	// ErrTemporarilyUnavailable signals a transient refresh failure after
	// retries were exhausted. It may self-heal on a later cycle and must
	// not be surfaced to the user as actionable.
	ErrTemporarilyUnavailable = errors.New("credential temporarily unavailable")
)
