package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	claimValue = "claimed"
	doneValue  = "done"

	defaultGuardPrefix   = "jobgather:delivery:"
	defaultGuardLeaseTTL = 5 * time.Minute
	defaultGuardDoneTTL  = 24 * time.Hour
)

// DeliveryGuardOptions configures RedisDeliveryGuard.
type DeliveryGuardOptions struct {
	// KeyPrefix namespaces guard keys; defaults to "jobgather:delivery:".
	KeyPrefix string
	// LeaseTTL bounds how long an in-flight claim blocks redeliveries of a crashed consumer.
	LeaseTTL time.Duration
	// DoneTTL is how long a processed key keeps rejecting redeliveries.
	DoneTTL time.Duration
}

// RedisDeliveryGuard deduplicates at-least-once deliveries across ingestor replicas.
type RedisDeliveryGuard struct {
	client   redis.UniversalClient
	prefix   string
	leaseTTL time.Duration
	doneTTL  time.Duration
}

// NewRedisDeliveryGuard creates a RedisDeliveryGuard with the given Redis client.
func NewRedisDeliveryGuard(client redis.UniversalClient, opts DeliveryGuardOptions) *RedisDeliveryGuard {
	g := &RedisDeliveryGuard{
		client:   client,
		prefix:   opts.KeyPrefix,
		leaseTTL: opts.LeaseTTL,
		doneTTL:  opts.DoneTTL,
	}
	if strings.TrimSpace(g.prefix) == "" {
		g.prefix = defaultGuardPrefix
	}
	if g.leaseTTL <= 0 {
		g.leaseTTL = defaultGuardLeaseTTL
	}
	if g.doneTTL <= 0 {
		g.doneTTL = defaultGuardDoneTTL
	}
	return g
}

func (g *RedisDeliveryGuard) key(k string) (string, error) {
	if k == "" {
		return "", errors.New("key cannot be empty")
	}
	return g.prefix + k, nil
}

// Claim takes the key for this delivery. It returns false when the key is held or done.
func (g *RedisDeliveryGuard) Claim(ctx context.Context, key string) (bool, error) {
	k, err := g.key(key)
	if err != nil {
		return false, err
	}
	// SET NX with TTL in one command; SETNX followed by EXPIRE could leave an immortal lease.
	status, err := g.client.SetArgs(ctx, k, claimValue, redis.SetArgs{Mode: "NX", TTL: g.leaseTTL}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis SET NX: %w", err)
	}
	return status == "OK", nil
}

// Complete marks a claimed key as processed for DoneTTL.
func (g *RedisDeliveryGuard) Complete(ctx context.Context, key string) error {
	k, err := g.key(key)
	if err != nil {
		return err
	}
	err = g.client.SetArgs(ctx, k, doneValue, redis.SetArgs{Mode: "XX", TTL: g.doneTTL}).Err()
	if errors.Is(err, redis.Nil) {
		// Lease expired before completion; record the outcome anyway.
		err = g.client.Set(ctx, k, doneValue, g.doneTTL).Err()
	}
	if err != nil {
		return fmt.Errorf("redis complete: %w", err)
	}
	return nil
}

// Release drops an in-flight claim so the next redelivery is processed.
func (g *RedisDeliveryGuard) Release(ctx context.Context, key string) error {
	k, err := g.key(key)
	if err != nil {
		return err
	}
	if err := g.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Health checks the health of the Redis connection.
func (g *RedisDeliveryGuard) Health(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}
