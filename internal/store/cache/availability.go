// Package cache provides a Redis read-through cache in front of the
// availability store. Availability is read on every reservation but changes
// rarely, so reads are cached and writes invalidate.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

const keyPrefix = "homeserve:availability:"

type AvailabilityCache struct {
	next  store.AvailabilityStore
	rdb   redis.UniversalClient
	ttl   time.Duration
	group singleflight.Group
	log   *slog.Logger
}

func NewAvailabilityCache(next store.AvailabilityStore, rdb redis.UniversalClient, ttl time.Duration, log *slog.Logger) *AvailabilityCache {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AvailabilityCache{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
		log:  log.With(slog.String("component", "cache.availability")),
	}
}

func Key(providerID string) string {
	return keyPrefix + providerID
}

// GetAvailability serves from Redis when possible. Redis failures fall back
// to the underlying store; they never fail the read.
func (c *AvailabilityCache) GetAvailability(ctx context.Context, providerID string) (domain.ProviderAvailability, error) {
	raw, err := c.rdb.Get(ctx, Key(providerID)).Bytes()
	switch {
	case err == nil:
		var pa domain.ProviderAvailability
		if jsonErr := json.Unmarshal(raw, &pa); jsonErr == nil {
			return pa, nil
		}
		c.log.Warn("discarding undecodable cache entry", slog.String("provider_id", providerID))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed", slog.Any("err", err), slog.String("provider_id", providerID))
	}

	v, err, _ := c.group.Do(providerID, func() (any, error) {
		pa, err := c.next.GetAvailability(ctx, providerID)
		if err != nil {
			return domain.ProviderAvailability{}, err
		}
		c.store(ctx, pa)
		return pa, nil
	})
	if err != nil {
		return domain.ProviderAvailability{}, err
	}
	return v.(domain.ProviderAvailability), nil
}

func (c *AvailabilityCache) SaveAvailability(ctx context.Context, pa domain.ProviderAvailability) (domain.ProviderAvailability, error) {
	saved, err := c.next.SaveAvailability(ctx, pa)
	if err != nil {
		return domain.ProviderAvailability{}, err
	}
	c.invalidate(ctx, pa.ProviderID)
	return saved, nil
}

func (c *AvailabilityCache) UpdateAvailability(ctx context.Context, providerID string, fn func(pa *domain.ProviderAvailability) error) (domain.ProviderAvailability, error) {
	saved, err := c.next.UpdateAvailability(ctx, providerID, fn)
	if err != nil {
		return domain.ProviderAvailability{}, err
	}
	c.invalidate(ctx, providerID)
	return saved, nil
}

func (c *AvailabilityCache) invalidate(ctx context.Context, providerID string) {
	if err := c.rdb.Del(ctx, Key(providerID)).Err(); err != nil {
		c.log.Warn("cache invalidate failed", slog.Any("err", err), slog.String("provider_id", providerID))
	}
}

func (c *AvailabilityCache) store(ctx context.Context, pa domain.ProviderAvailability) {
	b, err := json.Marshal(pa)
	if err != nil {
		c.log.Warn("cache encode failed", slog.Any("err", err), slog.String("provider_id", pa.ProviderID))
		return
	}
	if err := c.rdb.Set(ctx, Key(pa.ProviderID), b, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", slog.Any("err", err), slog.String("provider_id", pa.ProviderID))
	}
}
