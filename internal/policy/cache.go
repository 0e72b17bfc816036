package policy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/plantops/mv-backend/internal/logging"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/redis/go-redis/v9"
)

// RuleCache caches the active rule set per action. Entries carry a bounded
// TTL so instances that miss an Invalidate converge on their own.
type RuleCache interface {
	Get(ctx context.Context, action store.ActionType) ([]store.PermissionRule, bool)
	Set(ctx context.Context, action store.ActionType, rules []store.PermissionRule)
	Invalidate(ctx context.Context, action store.ActionType)
}

// MemoryRuleCache is a per-process cache. Tests construct a fresh one per
// case; it is also the fallback when Redis is not configured.
type MemoryRuleCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[store.ActionType]memoryEntry
}

type memoryEntry struct {
	rules     []store.PermissionRule
	expiresAt time.Time
}

func NewMemoryRuleCache(ttl time.Duration) *MemoryRuleCache {
	return &MemoryRuleCache{
		ttl:     ttl,
		entries: make(map[store.ActionType]memoryEntry),
	}
}

func (c *MemoryRuleCache) Get(_ context.Context, action store.ActionType) ([]store.PermissionRule, bool) {
	c.mu.RLock()
	entry, ok := c.entries[action]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.rules, true
}

func (c *MemoryRuleCache) Set(_ context.Context, action store.ActionType, rules []store.PermissionRule) {
	c.mu.Lock()
	c.entries[action] = memoryEntry{rules: rules, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryRuleCache) Invalidate(_ context.Context, action store.ActionType) {
	c.mu.Lock()
	delete(c.entries, action)
	c.mu.Unlock()
}

// RedisRuleCache shares cached rule sets across instances. Cache failures
// degrade to a store read, never to an evaluation failure.
type RedisRuleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRuleCache(client *redis.Client, ttl time.Duration) *RedisRuleCache {
	return &RedisRuleCache{client: client, ttl: ttl}
}

func cacheKey(action store.ActionType) string {
	return "policy:rules:" + string(action)
}

func (c *RedisRuleCache) Get(ctx context.Context, action store.ActionType) ([]store.PermissionRule, bool) {
	payload, err := c.client.Get(ctx, cacheKey(action)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Warn("rule cache read failed", "action", action, "error", err)
		}
		return nil, false
	}

	var rules []store.PermissionRule
	if err := json.Unmarshal(payload, &rules); err != nil {
		logging.Warn("rule cache entry corrupt, dropping", "action", action, "error", err)
		c.client.Del(ctx, cacheKey(action))
		return nil, false
	}
	return rules, true
}

func (c *RedisRuleCache) Set(ctx context.Context, action store.ActionType, rules []store.PermissionRule) {
	payload, err := json.Marshal(rules)
	if err != nil {
		logging.Warn("rule cache marshal failed", "action", action, "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(action), payload, c.ttl).Err(); err != nil {
		logging.Warn("rule cache write failed", "action", action, "error", err)
	}
}

func (c *RedisRuleCache) Invalidate(ctx context.Context, action store.ActionType) {
	if err := c.client.Del(ctx, cacheKey(action)).Err(); err != nil {
		logging.Warn("rule cache invalidation failed", "action", action, "error", err)
	}
}
