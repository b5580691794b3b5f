package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

// OrderStore is implemented by OrderRepository and its cached wrapper.
type OrderStore interface {
	WithTx(ctx context.Context, fn func(w OrderWriter) error) error
	Query(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
}

// Cached pages live under orders:query:<generation>:<filter hash>. Every
// committed write bumps the generation, so a page read from the database
// before the commit can only ever land under a generation nobody reads.
const generationKey = "orders:gen"

type CachedOrderRepository struct {
	repo   OrderStore
	cache  *cache.RedisCache
	logger *zap.Logger

	// stale is set when a commit could not bump the generation. Reads skip
	// the cache until a later bump succeeds.
	stale atomic.Bool
}

func NewCachedOrderRepository(repo OrderStore, cache *cache.RedisCache, logger *zap.Logger) *CachedOrderRepository {
	return &CachedOrderRepository{
		repo:   repo,
		cache:  cache,
		logger: logger.With(zap.String("component", "CachedOrderRepository")),
	}
}

func queryKey(gen int64, filter models.OrderFilter) string {
	data, _ := json.Marshal(filter)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("orders:query:%d:%s", gen, hex.EncodeToString(sum[:]))
}

// Query returns a cached page when present, otherwise reads through.
func (r *CachedOrderRepository) Query(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	if r.stale.Load() && !r.invalidate(ctx) {
		return r.repo.Query(ctx, filter)
	}

	gen, err := r.cache.Counter(ctx, generationKey)
	if err != nil {
		r.logger.Warn("Cache generation unavailable, reading through", zap.Error(err))
		return r.repo.Query(ctx, filter)
	}
	key := queryKey(gen, filter)

	var orders []models.Order
	err = r.cache.Get(ctx, key, &orders)
	if err == nil {
		r.logger.Debug("Cache hit", zap.String("key", key))
		return orders, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}

	orders, err = r.repo.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, orders); err != nil {
		r.logger.Warn("Failed to cache orders", zap.String("key", key), zap.Error(err))
	}
	return orders, nil
}

// WithTx delegates to the underlying store and retires every cached page
// once the transaction has committed.
func (r *CachedOrderRepository) WithTx(ctx context.Context, fn func(w OrderWriter) error) error {
	if err := r.repo.WithTx(ctx, fn); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// invalidate bumps the generation and reports whether it succeeded.
func (r *CachedOrderRepository) invalidate(ctx context.Context) bool {
	gen, err := r.cache.Incr(ctx, generationKey)
	if err != nil {
		r.stale.Store(true)
		r.logger.Error("Failed to invalidate order cache, bypassing it", zap.Error(err))
		return false
	}
	r.stale.Store(false)

	// Old pages would expire anyway; this only frees the memory early.
	if err := r.cache.DeleteByPattern(ctx, fmt.Sprintf("orders:query:%d:*", gen-1)); err != nil {
		r.logger.Warn("Failed to drop retired cache pages", zap.Int64("generation", gen-1), zap.Error(err))
	}
	return true
}
