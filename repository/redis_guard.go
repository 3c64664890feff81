package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-workspace-auth/provisioning"
)

const (
	// DefaultGuardTTL bounds how long a provisioning claim is held
	DefaultGuardTTL    = 24 * time.Hour
	defaultGuardPrefix = "provisioning:principal:"
)

// SetNXClient is the subset of the redis client the guard needs
type SetNXClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisGuard claims a principal id with SET NX so repeated deliveries of the
// same trigger only start one provisioning run.
type RedisGuard struct {
	client SetNXClient
	prefix string
	ttl    time.Duration
}

var _ provisioning.Guard = (*RedisGuard)(nil)

// NewRedisGuard creates a guard. A zero ttl uses DefaultGuardTTL.
func NewRedisGuard(client SetNXClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &RedisGuard{
		client: client,
		prefix: defaultGuardPrefix,
		ttl:    ttl,
	}
}

// Acquire implements provisioning.Guard
func (g *RedisGuard) Acquire(ctx context.Context, principalID string) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+principalID, time.Now().Unix(), g.ttl).Result()
}
