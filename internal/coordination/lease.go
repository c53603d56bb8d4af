// Package coordination provides Redis-backed single-leader election so
// multi-replica deployments run exactly one maintenance loop.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaseKey = "arbion:lease:token-maintenance"

// MaintenanceLease implements leader election with a Redis SETNX lease.
// The leader holds a key with a TTL; if the leader crashes the key expires
// and another instance takes over on its next tick.
type MaintenanceLease struct {
	redis      *redis.Client
	instanceID string
	ttl        time.Duration
}

// NewMaintenanceLease creates a lease for this instance. ttl should exceed
// the maintenance interval so leadership is sticky across ticks.
func NewMaintenanceLease(client *redis.Client, instanceID string, ttl time.Duration) *MaintenanceLease {
	return &MaintenanceLease{
		redis:      client,
		instanceID: instanceID,
		ttl:        ttl,
	}
}

// Acquire obtains the lease or renews it when this instance already holds
// it. Returns false when another instance is the leader.
func (l *MaintenanceLease) Acquire(ctx context.Context) (bool, error) {
	acquired, err := l.redis.SetNX(ctx, leaseKey, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring maintenance lease: %w", err)
	}
	if acquired {
		return true, nil
	}

	// Atomic check-and-renew: only extend the TTL if we still hold it.
	script := `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
	`
	result, err := l.redis.Eval(ctx, script, []string{leaseKey}, l.instanceID, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("renewing maintenance lease: %w", err)
	}
	return result != int64(0), nil
}

// Release voluntarily gives up the lease during graceful shutdown. Only
// deletes the key if this instance still holds it.
func (l *MaintenanceLease) Release(ctx context.Context) error {
	script := `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
	`
	if err := l.redis.Eval(ctx, script, []string{leaseKey}, l.instanceID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("releasing maintenance lease: %w", err)
	}
	return nil
}
