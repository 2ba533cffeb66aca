package cache

import (
	"context"
	"sync"
	"time"

	"github.com/aaronlmathis/bladetemp/internal/metrics"
	"github.com/aaronlmathis/bladetemp/internal/temperature"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// resolveTimeout bounds a shared resolve, which runs detached from any one
// caller's context.
const resolveTimeout = 30 * time.Second

type mappingEntry struct {
	nodes       temperature.InstanceNodeMap
	lastRefresh time.Time
}

// MappingCache keeps the instance to node mapping of each backend for a fixed
// TTL. Concurrent misses for the same backend share one upstream resolve;
// a caller that gives up does not cancel it for the others. Failed resolves
// are not cached.
type MappingCache struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	next    temperature.Resolver
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*mappingEntry // key: backend base URL
	group   singleflight.Group
}

// NewMappingCache wraps next with a per-backend TTL cache
func NewMappingCache(logger *zap.Logger, next temperature.Resolver, ttl time.Duration) *MappingCache {
	return &MappingCache{
		logger:  logger,
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*mappingEntry),
	}
}

// Source implements temperature.Resolver
func (mc *MappingCache) Source() string {
	return mc.next.Source()
}

// Resolve implements temperature.Resolver
func (mc *MappingCache) Resolve(ctx context.Context, baseURL string) (temperature.InstanceNodeMap, error) {
	if nodes, ok := mc.lookup(baseURL); ok {
		metrics.RecordResolverCacheLookup(true)
		return nodes, nil
	}
	metrics.RecordResolverCacheLookup(false)

	ch := mc.group.DoChan(baseURL, func() (interface{}, error) {
		resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()

		nodes, err := mc.next.Resolve(resolveCtx, baseURL)
		if err != nil {
			return nil, err
		}

		mc.mu.Lock()
		mc.entries[baseURL] = &mappingEntry{nodes: nodes, lastRefresh: mc.now()}
		mc.mu.Unlock()

		mc.logger.Debug("Cached instance to node mapping",
			zap.String("backend", baseURL),
			zap.Int("entries", len(nodes)),
			zap.Duration("ttl", mc.ttl))

		return nodes, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			mc.logger.Debug("Shared in-flight mapping resolve", zap.String("backend", baseURL))
		}
		return res.Val.(temperature.InstanceNodeMap), nil
	}
}

func (mc *MappingCache) lookup(baseURL string) (temperature.InstanceNodeMap, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	entry, ok := mc.entries[baseURL]
	if !ok || mc.now().Sub(entry.lastRefresh) >= mc.ttl {
		return nil, false
	}
	return entry.nodes, true
}
