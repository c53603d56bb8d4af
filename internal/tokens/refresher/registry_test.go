package refresher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
)

type stubRefresher struct {
	err   error
	calls int
}

func (s *stubRefresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	s.calls++
	if s.err != nil {
		return Token{}, s.err
	}
	return Token{AccessToken: "at", RefreshToken: refreshToken}, nil
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(domain.ProviderSchwab, &stubRefresher{})

	_, ok := reg.For(domain.ProviderSchwab)
	assert.True(t, ok)

	_, ok = reg.For(domain.ProviderCoinbase)
	assert.False(t, ok)
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	reg := NewRegistry()
	stub := &stubRefresher{}
	reg.Register(domain.ProviderSchwab, stub)

	ref, _ := reg.For(domain.ProviderSchwab)
	token, err := ref.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, 1, stub.calls)
}

func TestBreaker_OpensAfterConsecutiveTransientFailures(t *testing.T) {
	reg := NewRegistry()
	stub := &stubRefresher{err: &TransientFailure{Message: "down"}}
	reg.Register(domain.ProviderSchwab, stub)
	ref, _ := reg.For(domain.ProviderSchwab)

	for i := 0; i < 5; i++ {
		_, err := ref.Refresh(context.Background(), "rt")
		var transient *TransientFailure
		require.ErrorAs(t, err, &transient)
	}

	// Breaker is now open: the underlying refresher is no longer called
	// and the open state surfaces as a transient failure.
	_, err := ref.Refresh(context.Background(), "rt")
	var transient *TransientFailure
	require.ErrorAs(t, err, &transient)
	assert.Contains(t, transient.Message, "circuit breaker open")
	assert.Equal(t, 5, stub.calls)
}

func TestBreaker_HardFailuresDoNotTrip(t *testing.T) {
	reg := NewRegistry()
	stub := &stubRefresher{err: &HardFailure{Message: "invalid_grant"}}
	reg.Register(domain.ProviderSchwab, stub)
	ref, _ := reg.For(domain.ProviderSchwab)

	for i := 0; i < 10; i++ {
		_, err := ref.Refresh(context.Background(), "rt")
		var hard *HardFailure
		require.ErrorAs(t, err, &hard)
	}

	// All ten calls reached the provider: dead credentials are a
	// per-user condition, not a provider outage.
	assert.Equal(t, 10, stub.calls)
}
