package domain

import (
	"context"

	"github.com/google/uuid"
)

// CredentialRepository is the narrow persistence surface the token manager
// works against. Keeping it this small lets the manager's state machine be
// tested with an in-memory fake.
type CredentialRepository interface {
	// Load returns the credential for the pair, or ErrCredentialNotFound.
	Load(ctx context.Context, userID uuid.UUID, provider Provider) (*Credential, error)

	// ListActive returns all credentials with is_active = true.
	ListActive(ctx context.Context) ([]*Credential, error)

	// Save persists lifecycle fields and the encrypted payload using the
	// credential's Version for optimistic concurrency. On success the
	// in-memory Version is advanced; on a concurrent modification it
	// returns ErrStaleCredential and writes nothing.
	Save(ctx context.Context, cred *Credential) error
}
