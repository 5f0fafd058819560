package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kuatecno/mejoresnoticias/internal/domain"
)

const (
	latestBundleKey = "mejoresnoticias:bundle:latest"
	latestBundleTTL = 5 * time.Minute
)

// NewCache connects to Redis; a failed ping only logs, since the cache is
// never required for correctness.
func NewCache(ctx context.Context, addr string) *redis.Client {
	if addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis ping failed, cache reads will miss", "addr", addr, "error", err)
	}
	return rdb
}

func (s *Store) readCachedLatest(ctx context.Context) *domain.DailyBundle {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, latestBundleKey).Bytes()
	if err != nil {
		return nil
	}

	var bundle domain.DailyBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil
	}
	return &bundle
}

func (s *Store) writeCachedLatest(ctx context.Context, bundle *domain.DailyBundle) {
	if s.cache == nil || bundle == nil {
		return
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, latestBundleKey, raw, latestBundleTTL).Err(); err != nil {
		s.logger.Debug("bundle cache write failed", "error", err)
	}
}

func (s *Store) invalidateLatest(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, latestBundleKey).Err(); err != nil {
		s.logger.Debug("bundle cache invalidation failed", "error", err)
	}
}
