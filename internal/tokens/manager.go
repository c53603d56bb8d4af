package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/metrics"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/platform/logging"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/platform/retry"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/tokens/refresher"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 2 * time.Second

	// newRowGrace is how recently a credential may have been created
	// before the bulk path skips it. A row this young may still be
	// mid-write from a concurrent authorization-code exchange.
	newRowGrace = 60 * time.Second

	undecryptableMsg = "credential payload cannot be decrypted; force re-authentication for this account"
)

// Cipher is the slice of the crypto service the manager needs.
type Cipher interface {
	Encrypt(payload domain.Payload) (string, error)
	Decrypt(blob string) (domain.Payload, error)
}

// Manager owns the credential lifecycle: it is the sole writer of
// credential rows outside the authorization flow, and it applies the
// refresh state machine and retry policy for both the on-demand and bulk
// paths.
type Manager struct {
	repo     domain.CredentialRepository
	cipher   Cipher
	registry *refresher.Registry
	clock    clockwork.Clock

	maxAttempts    int
	initialBackoff time.Duration
	limiter        *rate.Limiter
	flight         singleflight.Group
}

// Option tweaks manager behavior; used by tests to shrink backoff.
type Option func(*Manager)

// WithRetry overrides the refresh retry policy.
func WithRetry(maxAttempts int, initialBackoff time.Duration) Option {
	return func(m *Manager) {
		m.maxAttempts = maxAttempts
		m.initialBackoff = initialBackoff
	}
}

// WithRefreshLimiter bounds how fast the bulk path issues refreshes within
// one maintenance cycle.
func WithRefreshLimiter(limiter *rate.Limiter) Option {
	return func(m *Manager) { m.limiter = limiter }
}

func NewManager(repo domain.CredentialRepository, cipher Cipher, registry *refresher.Registry, clock clockwork.Clock, opts ...Option) *Manager {
	m := &Manager{
		repo:           repo,
		cipher:         cipher,
		registry:       registry,
		clock:          clock,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		limiter:        rate.NewLimiter(rate.Limit(1), 3),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidToken returns a usable payload for the pair, refreshing first if
// the stored token is within the expiry buffer. Expected failure modes come
// back as typed errors: ErrNotConnected, ErrReauthRequired,
// ErrTemporarilyUnavailable.
func (m *Manager) GetValidToken(ctx context.Context, userID uuid.UUID, provider domain.Provider) (domain.Payload, error) {
	cred, err := m.repo.Load(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return domain.Payload{}, fmt.Errorf("%w: %s", domain.ErrNotConnected, provider)
		}
		return domain.Payload{}, fmt.Errorf("loading credential: %w", err)
	}
	if !cred.IsActive {
		return domain.Payload{}, fmt.Errorf("%w: %s", domain.ErrNotConnected, provider)
	}

	// API-key style providers never refresh; the stored payload is the
	// credential regardless of expires_at.
	if !provider.UsesRefreshTokens() {
		return m.decryptOrFlag(ctx, cred)
	}

	// A known-dead refresh token gets no network call.
	if cred.Status == domain.StatusReauthRequired {
		return domain.Payload{}, fmt.Errorf("%w: %s", domain.ErrReauthRequired, cred.LastError)
	}

	payload, err := m.decryptOrFlag(ctx, cred)
	if err != nil {
		return domain.Payload{}, err
	}

	if !payload.NeedsRefresh(m.clock.Now()) {
		return payload, nil
	}

	return m.sharedRefresh(ctx, cred, payload)
}

// sharedRefresh collapses concurrent refreshes of the same row into one
// flight. Without it, every caller racing the winner would lose the
// optimistic lock mid-rotation and be told to come back later; with it
// they all get the winner's fresh token.
func (m *Manager) sharedRefresh(ctx context.Context, cred *domain.Credential, payload domain.Payload) (domain.Payload, error) {
	key := cred.UserID.String() + "/" + string(cred.Provider)
	v, err, _ := m.flight.Do(key, func() (any, error) {
		return m.refreshCredential(ctx, cred, payload)
	})
	if err != nil {
		return domain.Payload{}, err
	}
	return v.(domain.Payload), nil
}

// ReauthEntry names one connection that needs user action.
type ReauthEntry struct {
	UserID   uuid.UUID
	Provider domain.Provider
	Reason   string
}

// Report aggregates one bulk validation pass for maintenance logs and
// alerting.
type Report struct {
	Checked        int
	Refreshed      int
	Errors         int
	SkippedAPIKeys int
	SkippedRecent  int
	SkippedReauth  int
	ReauthRequired []ReauthEntry
}

// ValidateAll applies the per-credential refresh logic to every active
// OAuth credential. When nothing is due the pass is read-only, so
// back-to-back invocations are cheap no-ops.
func (m *Manager) ValidateAll(ctx context.Context) (Report, error) {
	var report Report

	creds, err := m.repo.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("listing active credentials: %w", err)
	}

	for _, cred := range creds {
		report.Checked++

		if !cred.Provider.UsesRefreshTokens() {
			report.SkippedAPIKeys++
			continue
		}
		if cred.Status == domain.StatusReauthRequired {
			report.SkippedReauth++
			continue
		}
		if m.clock.Now().Sub(cred.CreatedAt) < newRowGrace {
			report.SkippedRecent++
			continue
		}

		payload, err := m.decryptOrFlag(ctx, cred)
		if err != nil {
			report.Errors++
			continue
		}
		if !payload.NeedsRefresh(m.clock.Now()) {
			continue
		}

		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return report, fmt.Errorf("refresh rate limiter: %w", err)
			}
		}

		if _, err := m.sharedRefresh(ctx, cred, payload); err != nil {
			if errors.Is(err, domain.ErrReauthRequired) {
				report.ReauthRequired = append(report.ReauthRequired, ReauthEntry{
					UserID:   cred.UserID,
					Provider: cred.Provider,
					Reason:   cred.LastError,
				})
			} else {
				report.Errors++
			}
			continue
		}
		report.Refreshed++
	}

	return report, nil
}

// refreshCredential runs the retry-wrapped refresh for one credential and
// persists the outcome. The row's version column makes the
// read-decide-refresh-write sequence logically atomic: if a concurrent
// writer (another refresh pass, or an OAuth callback storing a brand-new
// token) got there first, our claim write fails and we back off instead of
// double-rotating the refresh token.
func (m *Manager) refreshCredential(ctx context.Context, cred *domain.Credential, payload domain.Payload) (domain.Payload, error) {
	ref, ok := m.registry.For(cred.Provider)
	if !ok {
		return domain.Payload{}, fmt.Errorf("no refresher registered for provider %s", cred.Provider)
	}

	ctx = logging.WithRefreshScope(ctx, cred.UserID.String(), string(cred.Provider))

	cred.Status = domain.StatusRefreshing
	if err := m.repo.Save(ctx, cred); err != nil {
		if errors.Is(err, domain.ErrStaleCredential) {
			return m.reloadAfterConflict(ctx, cred)
		}
		return domain.Payload{}, fmt.Errorf("claiming credential for refresh: %w", err)
	}

	attempts := 0
	policy := retry.Policy{
		MaxAttempts:    m.maxAttempts,
		InitialBackoff: m.initialBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.WarnContext(ctx, "Token refresh attempt failed, retrying", "attempt", attempt, "backoff", backoff.String(), "error", err)
		},
	}

	token, err := retry.Do(ctx, policy, classifyRefresh, func() (refresher.Token, error) {
		attempts++
		return ref.Refresh(ctx, payload.RefreshToken)
	})

	now := m.clock.Now()
	if err != nil {
		var perm *retry.PermanentError
		if errors.As(err, &perm) {
			cred.Status = domain.StatusReauthRequired
			cred.LastError = perm.Err.Error()
			cred.LastTested = &now
			m.saveOutcome(ctx, cred)
			metrics.TokenRefreshTotal.WithLabelValues(string(cred.Provider), "hard_failure").Inc()
			slog.ErrorContext(ctx, "Refresh token rejected by provider, user must reconnect", "attempts", attempts, "error", perm.Err)
			return domain.Payload{}, fmt.Errorf("%w: %s", domain.ErrReauthRequired, perm.Err.Error())
		}

		cred.Status = domain.StatusError
		cred.ConsecutiveFailures++
		cred.LastError = err.Error()
		cred.LastTested = &now
		m.saveOutcome(ctx, cred)
		metrics.TokenRefreshTotal.WithLabelValues(string(cred.Provider), "transient_exhausted").Inc()
		slog.WarnContext(ctx, "Token refresh exhausted retries", "attempts", attempts, "consecutive_failures", cred.ConsecutiveFailures, "error", err)
		return domain.Payload{}, fmt.Errorf("%w: %v", domain.ErrTemporarilyUnavailable, err)
	}

	newPayload := domain.Payload{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
		Scope:        token.Scope,
	}

	blob, err := m.cipher.Encrypt(newPayload)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("encrypting refreshed payload: %w", err)
	}

	cred.EncryptedPayload = blob
	cred.Status = domain.StatusActive
	cred.ConsecutiveFailures = 0
	cred.LastError = ""
	cred.LastTested = &now

	if err := m.repo.Save(ctx, cred); err != nil {
		if errors.Is(err, domain.ErrStaleCredential) {
			// An authorization callback stored a newer token while our
			// refresh was in flight; its token wins, ours is discarded.
			slog.WarnContext(ctx, "Discarding refreshed token, row was updated concurrently")
			return m.reloadAfterConflict(ctx, cred)
		}
		return domain.Payload{}, fmt.Errorf("persisting refreshed payload: %w", err)
	}

	metrics.TokenRefreshTotal.WithLabelValues(string(cred.Provider), "success").Inc()
	slog.InfoContext(ctx, "Token refreshed", "attempts", attempts, "expires_at", newPayload.ExpiresAt)
	return newPayload, nil
}

// reloadAfterConflict re-reads the row after losing an optimistic-lock
// race. If the concurrent writer left a fresh token behind we can serve it;
// otherwise the caller gets a transient signal and tries again later.
func (m *Manager) reloadAfterConflict(ctx context.Context, cred *domain.Credential) (domain.Payload, error) {
	fresh, err := m.repo.Load(ctx, cred.UserID, cred.Provider)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("reloading after concurrent update: %w", err)
	}
	*cred = *fresh

	payload, err := m.cipher.Decrypt(fresh.EncryptedPayload)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("decrypting credential payload: %w", err)
	}
	if !payload.NeedsRefresh(m.clock.Now()) {
		return payload, nil
	}
	return domain.Payload{}, fmt.Errorf("%w: concurrent refresh in progress", domain.ErrTemporarilyUnavailable)
}

// decryptOrFlag decrypts a credential's payload, flagging the row on
// integrity failure so an operator can force re-authentication for just
// this account instead of the problem being masked.
func (m *Manager) decryptOrFlag(ctx context.Context, cred *domain.Credential) (domain.Payload, error) {
	payload, err := m.cipher.Decrypt(cred.EncryptedPayload)
	if err == nil {
		return payload, nil
	}

	// Avoid rewriting the row on every cycle once flagged.
	if cred.Status != domain.StatusError || cred.LastError != undecryptableMsg {
		cred.Status = domain.StatusError
		cred.LastError = undecryptableMsg
		if saveErr := m.repo.Save(ctx, cred); saveErr != nil {
			slog.ErrorContext(ctx, "Failed to flag undecryptable credential", "user_id", cred.UserID.String(), "provider", string(cred.Provider), "error", saveErr)
		}
	}

	slog.ErrorContext(ctx, "Credential payload failed decryption", "user_id", cred.UserID.String(), "provider", string(cred.Provider), "error", err)
	return domain.Payload{}, fmt.Errorf("decrypting credential payload: %w", err)
}

func (m *Manager) saveOutcome(ctx context.Context, cred *domain.Credential) {
	if err := m.repo.Save(ctx, cred); err != nil {
		slog.ErrorContext(ctx, "Failed to persist refresh outcome", "status", string(cred.Status), "error", err)
	}
}

func classifyRefresh(err error) retry.Action {
	var hard *refresher.HardFailure
	if errors.As(err, &hard) {
		return retry.Stop
	}
	return retry.Retry
}
