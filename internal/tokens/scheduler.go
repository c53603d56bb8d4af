package tokens

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/metrics"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/platform/logging"
)

const (
	defaultInterval     = 5 * time.Minute
	defaultStartupGrace = 120 * time.Second
)

// Validator is the slice of the manager the scheduler drives.
type Validator interface {
	ValidateAll(ctx context.Context) (Report, error)
}

// Leaser gates maintenance to a single replica. Acquire returns true when
// this instance holds (or just obtained) the maintenance lease.
type Leaser interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler runs bulk token validation on a fixed interval. It is an
// explicit object with Start/Stop lifecycle methods, constructed once at
// startup and handed to whoever needs it.
type Scheduler struct {
	validator Validator
	leaser    Leaser // nil means single-instance deployment, always leader
	clock     clockwork.Clock

	interval     time.Duration
	startupGrace time.Duration
	startedAt    time.Time
	stopCh       chan struct{}
}

// SchedulerOption tweaks scheduler timing; used by tests.
type SchedulerOption func(*Scheduler)

func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

func WithStartupGrace(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.startupGrace = d }
}

func NewScheduler(validator Validator, leaser Leaser, clock clockwork.Clock, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		validator:    validator,
		leaser:       leaser,
		clock:        clock,
		interval:     defaultInterval,
		startupGrace: defaultStartupGrace,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the maintenance loop. It blocks until Stop is called or ctx is
// cancelled, so run it in its own goroutine. Cancellation takes effect
// between ticks; a tick in progress runs to completion so an already-sent
// refresh request never loses its response.
func (s *Scheduler) Start(ctx context.Context) {
	s.startedAt = s.clock.Now()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Token maintenance scheduler started", "interval", s.interval.String(), "startup_grace", s.startupGrace.String())

	for {
		select {
		case <-ticker.Chan():
			s.tick(ctx)
		case <-s.stopCh:
			slog.Info("Token maintenance scheduler stopped")
			return
		case <-ctx.Done():
			slog.Info("Token maintenance scheduler context cancelled")
			return
		}
	}
}

// Stop terminates the loop after any in-flight tick completes.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	if s.leaser != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.leaser.Release(ctx); err != nil {
			slog.Warn("Failed to release maintenance lease", "error", err)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	tickCtx := logging.WithCycleID(ctx, logging.NewCycleID())

	// A cold restart should not hammer every provider's token endpoint at
	// once, and in-flight OAuth callbacks may still be writing fresh rows.
	if elapsed := s.clock.Now().Sub(s.startedAt); elapsed < s.startupGrace {
		slog.InfoContext(tickCtx, "Skipping maintenance tick during startup grace period", "elapsed", elapsed.String())
		return
	}

	if s.leaser != nil {
		leader, err := s.leaser.Acquire(tickCtx)
		if err != nil {
			slog.WarnContext(tickCtx, "Maintenance lease check failed, skipping tick", "error", err)
			return
		}
		if !leader {
			slog.DebugContext(tickCtx, "Not maintenance leader, skipping tick")
			return
		}
	}

	start := s.clock.Now()
	report, err := s.validator.ValidateAll(tickCtx)
	elapsed := s.clock.Now().Sub(start)
	metrics.MaintenanceTickDuration.Observe(elapsed.Seconds())

	if err != nil {
		slog.ErrorContext(tickCtx, "Bulk token validation failed", "error", err)
		return
	}

	metrics.CredentialsAwaitingReauth.Set(float64(len(report.ReauthRequired)))

	slog.InfoContext(tickCtx, "Bulk token validation complete",
		"checked", report.Checked,
		"refreshed", report.Refreshed,
		"errors", report.Errors,
		"reauth_required", len(report.ReauthRequired),
		"skipped_api_keys", report.SkippedAPIKeys,
		"skipped_recent", report.SkippedRecent,
		"skipped_reauth", report.SkippedReauth,
		"duration", elapsed.String())

	for _, entry := range report.ReauthRequired {
		slog.WarnContext(tickCtx, "Connection requires re-authorization",
			"user_id", entry.UserID.String(),
			"provider", string(entry.Provider),
			"reason", entry.Reason)
	}
}
