package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
)

// credentialColumns must match the Scan order in scanCredential.
const credentialColumns = `id, user_id, provider, encrypted_payload, is_active, status, last_error, consecutive_failures, version, created_at, updated_at, last_tested`

// CredentialRepo implements domain.CredentialRepository backed by
// PostgreSQL. It stores only ciphertext; encryption happens in the token
// manager's cipher before rows reach this layer.
type CredentialRepo struct {
	pool *pgxpool.Pool
}

func NewCredentialRepo(pool *pgxpool.Pool) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

func scanCredential(row pgx.Row) (*domain.Credential, error) {
	var cred domain.Credential
	err := row.Scan(
		&cred.ID, &cred.UserID, &cred.Provider, &cred.EncryptedPayload,
		&cred.IsActive, &cred.Status, &cred.LastError, &cred.ConsecutiveFailures,
		&cred.Version, &cred.CreatedAt, &cred.UpdatedAt, &cred.LastTested,
	)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepo) Load(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Credential, error) {
	cred, err := scanCredential(r.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE user_id = $1 AND provider = $2`,
		userID, provider))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return cred, nil
}

func (r *CredentialRepo) ListActive(ctx context.Context) ([]*domain.Credential, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active credentials: %w", err)
	}
	defer rows.Close()

	var creds []*domain.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Save persists the mutable lifecycle fields guarded by the version column.
// A concurrent writer (another refresh pass or an OAuth callback) advances
// the version, making this update match zero rows.
func (r *CredentialRepo) Save(ctx context.Context, cred *domain.Credential) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE credentials
		SET encrypted_payload = $1, status = $2, last_error = $3,
		    consecutive_failures = $4, last_tested = $5,
		    version = version + 1, updated_at = NOW()
		WHERE id = $6 AND version = $7
	`, cred.EncryptedPayload, cred.Status, cred.LastError,
		cred.ConsecutiveFailures, cred.LastTested, cred.ID, cred.Version)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleCredential
	}

	cred.Version++
	return nil
}

// Upsert stores a freshly authorized credential for the pair, resetting
// lifecycle state. This is the authorization flow's write path; the token
// manager never calls it.
func (r *CredentialRepo) Upsert(ctx context.Context, userID uuid.UUID, provider domain.Provider, encryptedPayload string) (*domain.Credential, error) {
	cred, err := scanCredential(r.pool.QueryRow(ctx, `
		INSERT INTO credentials (user_id, provider, encrypted_payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			encrypted_payload = EXCLUDED.encrypted_payload,
			is_active = TRUE,
			status = 'active',
			last_error = '',
			consecutive_failures = 0,
			version = credentials.version + 1,
			updated_at = NOW()
		RETURNING `+credentialColumns+`
	`, userID, provider, encryptedPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert credential: %w", err)
	}
	return cred, nil
}

// SetActive flips the user-controlled connect/disconnect switch. This is
// the only writer of is_active; the lifecycle manager never touches it.
func (r *CredentialRepo) SetActive(ctx context.Context, userID uuid.UUID, provider domain.Provider, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE credentials SET is_active = $1, updated_at = NOW()
		WHERE user_id = $2 AND provider = $3
	`, active, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to update credential activation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

// ListAll returns every credential row, for the admin status listing.
func (r *CredentialRepo) ListAll(ctx context.Context) ([]*domain.Credential, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM credentials ORDER BY user_id, provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*domain.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}
