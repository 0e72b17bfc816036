package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/plantops/mv-backend/internal/policy"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/plantops/mv-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRuleCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := policy.NewMemoryRuleCache(time.Minute)
	rules := []store.PermissionRule{testutil.NewRule(store.ActionCreateMachine).Build()}

	_, ok := cache.Get(ctx, store.ActionCreateMachine)
	assert.False(t, ok)

	cache.Set(ctx, store.ActionCreateMachine, rules)
	got, ok := cache.Get(ctx, store.ActionCreateMachine)
	require.True(t, ok)
	assert.Equal(t, rules, got)

	// Entries are per action.
	_, ok = cache.Get(ctx, store.ActionEditMachine)
	assert.False(t, ok)
}

func TestMemoryRuleCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache := policy.NewMemoryRuleCache(10 * time.Millisecond)
	cache.Set(ctx, store.ActionCreateMachine, []store.PermissionRule{})

	time.Sleep(20 * time.Millisecond)
	_, ok := cache.Get(ctx, store.ActionCreateMachine)
	assert.False(t, ok, "entry must expire after its TTL")
}

func TestMemoryRuleCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache := policy.NewMemoryRuleCache(time.Minute)
	cache.Set(ctx, store.ActionCreateMachine, []store.PermissionRule{})
	cache.Set(ctx, store.ActionEditMachine, []store.PermissionRule{})

	cache.Invalidate(ctx, store.ActionCreateMachine)

	_, ok := cache.Get(ctx, store.ActionCreateMachine)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, store.ActionEditMachine)
	assert.True(t, ok, "invalidation is scoped to one action")
}
