package refresher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
)

// Registry maps providers to their refresher. Adding a provider means
// registering one implementation, not editing a dispatch chain.
type Registry struct {
	refreshers map[domain.Provider]Refresher
}

func NewRegistry() *Registry {
	return &Registry{refreshers: make(map[domain.Provider]Refresher)}
}

// Register installs a refresher for the provider, wrapped in a circuit
// breaker so a provider-wide outage trips fast instead of burning the full
// retry budget on every credential.
func (r *Registry) Register(provider domain.Provider, ref Refresher) {
	r.refreshers[provider] = withBreaker(string(provider), ref)
}

// RegisterRaw installs a refresher without the circuit-breaker wrapper.
func (r *Registry) RegisterRaw(provider domain.Provider, ref Refresher) {
	r.refreshers[provider] = ref
}

// For returns the refresher for the provider, or false when none is
// registered.
func (r *Registry) For(provider domain.Provider) (Refresher, bool) {
	ref, ok := r.refreshers[provider]
	return ref, ok
}

// breakerRefresher wraps a Refresher in a gobreaker.CircuitBreaker. Hard
// failures count as successful calls for breaker purposes: the provider
// responded, the credential is just dead.
type breakerRefresher struct {
	inner Refresher
	cb    *gobreaker.CircuitBreaker
}

func withBreaker(name string, inner Refresher) Refresher {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var hard *HardFailure
			return errors.As(err, &hard)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Provider circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
		},
	}

	return &breakerRefresher{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.Refresh(ctx, refreshToken)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Token{}, &TransientFailure{Message: "provider circuit breaker open", Err: err}
		}
		return Token{}, err
	}
	return result.(Token), nil
}
