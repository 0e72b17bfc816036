package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/policy"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/plantops/mv-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRule(t *testing.T, rules *testutil.FakeRuleStore, r store.PermissionRule) store.PermissionRule {
	t.Helper()
	created, err := rules.CreateRule(context.Background(), r)
	require.NoError(t, err)
	return created
}

func TestEvaluate_HighestPriorityWins(t *testing.T) {
	ctx := context.Background()
	rules := testutil.NewFakeRuleStore()
	roleID := uuid.New()
	approverRole := uuid.New()

	// Unscoped low-priority deny, overridden for the role by a
	// REQUIRES_APPROVAL rule at higher priority.
	seedRule(t, rules, testutil.NewRule(store.ActionCreateMachine).
		WithName("default deny").
		WithPermission(store.PermissionDenied).
		WithPriority(0).
		Build())
	seedRule(t, rules, testutil.NewRule(store.ActionCreateMachine).
		WithName("operators need approval").
		WithPermission(store.PermissionRequiresApproval).
		WithApproverRoles(approverRole).
		WithRoles(roleID).
		WithPriority(10).
		Build())

	evaluator := policy.NewEvaluator(rules, nil)

	decision, err := evaluator.Evaluate(ctx, policy.Actor{UserID: uuid.New(), RoleID: roleID},
		store.ActionCreateMachine, policy.ResourceContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.RequiresApproval)
	assert.Equal(t, []uuid.UUID{approverRole}, decision.ApproverRoles)
	require.NotNil(t, decision.MatchedRule)
	assert.Equal(t, "operators need approval", decision.MatchedRule.Name)

	// An actor outside the role falls through to the unscoped deny.
	decision, err = evaluator.Evaluate(ctx, policy.Actor{UserID: uuid.New(), RoleID: uuid.New()},
		store.ActionCreateMachine, policy.ResourceContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.False(t, decision.RequiresApproval)
	require.NotNil(t, decision.MatchedRule)
	assert.Equal(t, "default deny", decision.MatchedRule.Name)
}

func TestEvaluate_NoMatchingRuleDenies(t *testing.T) {
	rules := testutil.NewFakeRuleStore()
	evaluator := policy.NewEvaluator(rules, nil)

	decision, err := evaluator.Evaluate(context.Background(), policy.Actor{UserID: uuid.New()},
		store.ActionDeleteMachine, policy.ResourceContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.False(t, decision.RequiresApproval)
	assert.Nil(t, decision.MatchedRule)
	assert.Equal(t, policy.ReasonNoMatchingRule, decision.Reason)
}

func TestEvaluate_UnknownAction(t *testing.T) {
	evaluator := policy.NewEvaluator(testutil.NewFakeRuleStore(), nil)

	_, err := evaluator.Evaluate(context.Background(), policy.Actor{},
		store.ActionType("LAUNCH_ROCKET"), policy.ResourceContext{})
	assert.Error(t, err)
}

func TestEvaluate_EmptyScopesAreWildcards(t *testing.T) {
	rules := testutil.NewFakeRuleStore()
	seedRule(t, rules, testutil.NewRule(store.ActionEditMachine).
		WithPriority(0).
		Build())

	evaluator := policy.NewEvaluator(rules, nil)
	decision, err := evaluator.Evaluate(context.Background(),
		policy.Actor{UserID: uuid.New(), RoleID: uuid.New(), DepartmentID: uuid.New()},
		store.ActionEditMachine, policy.ResourceContext{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEvaluate_CategoryScoping(t *testing.T) {
	rules := testutil.NewFakeRuleStore()
	categoryID := uuid.New()
	seedRule(t, rules, testutil.NewRule(store.ActionEditMachine).
		WithCategories(categoryID).
		Build())

	evaluator := policy.NewEvaluator(rules, nil)
	actor := policy.Actor{UserID: uuid.New()}

	decision, err := evaluator.Evaluate(context.Background(), actor,
		store.ActionEditMachine, policy.ResourceContext{CategoryID: &categoryID})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// No category in the resource context cannot satisfy a scoped rule.
	decision, err = evaluator.Evaluate(context.Background(), actor,
		store.ActionEditMachine, policy.ResourceContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, policy.ReasonNoMatchingRule, decision.Reason)
}

func TestEvaluate_MaxValueFailsClosed(t *testing.T) {
	rules := testutil.NewFakeRuleStore()
	seedRule(t, rules, testutil.NewRule(store.ActionApproveMachine).
		WithMaxValue(5000).
		Build())

	evaluator := policy.NewEvaluator(rules, nil)
	actor := policy.Actor{UserID: uuid.New()}

	within := 4999.0
	decision, err := evaluator.Evaluate(context.Background(), actor,
		store.ActionApproveMachine, policy.ResourceContext{NumericValue: &within})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	over := 5001.0
	decision, err = evaluator.Evaluate(context.Background(), actor,
		store.ActionApproveMachine, policy.ResourceContext{NumericValue: &over})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// A value-capped rule cannot match when no value is supplied.
	decision, err = evaluator.Evaluate(context.Background(), actor,
		store.ActionApproveMachine, policy.ResourceContext{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEvaluate_EqualPriorityOldestWins(t *testing.T) {
	rules := testutil.NewFakeRuleStore()
	// Priority 0 is exempt from uniqueness, so two rules can share it.
	first := seedRule(t, rules, testutil.NewRule(store.ActionEditMachine).
		WithName("older").
		WithPermission(store.PermissionDenied).
		WithPriority(0).
		Build())
	seedRule(t, rules, testutil.NewRule(store.ActionEditMachine).
		WithName("newer").
		WithPriority(0).
		Build())

	evaluator := policy.NewEvaluator(rules, nil)
	decision, err := evaluator.Evaluate(context.Background(), policy.Actor{UserID: uuid.New()},
		store.ActionEditMachine, policy.ResourceContext{})
	require.NoError(t, err)
	require.NotNil(t, decision.MatchedRule)
	assert.Equal(t, first.ID, decision.MatchedRule.ID)
	assert.False(t, decision.Allowed)
}

func TestEvaluate_UsesCache(t *testing.T) {
	rules := testutil.NewFakeRuleStore()
	seedRule(t, rules, testutil.NewRule(store.ActionEditMachine).Build())

	cache := policy.NewMemoryRuleCache(time.Minute)
	evaluator := policy.NewEvaluator(rules, cache)
	actor := policy.Actor{UserID: uuid.New()}

	for i := 0; i < 3; i++ {
		_, err := evaluator.Evaluate(context.Background(), actor,
			store.ActionEditMachine, policy.ResourceContext{})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rules.ListCalls, "repeated evaluations should hit the cache")

	cache.Invalidate(context.Background(), store.ActionEditMachine)
	_, err := evaluator.Evaluate(context.Background(), actor,
		store.ActionEditMachine, policy.ResourceContext{})
	require.NoError(t, err)
	assert.Equal(t, 2, rules.ListCalls)
}

func TestAllPermissions_CoversEveryAction(t *testing.T) {
	rules := testutil.NewFakeRuleStore()
	seedRule(t, rules, testutil.NewRule(store.ActionCreateMachine).Build())

	evaluator := policy.NewEvaluator(rules, nil)
	decisions := evaluator.AllPermissions(context.Background(),
		policy.Actor{UserID: uuid.New()}, policy.ResourceContext{})

	require.Len(t, decisions, len(store.AllActionTypes))
	assert.True(t, decisions[store.ActionCreateMachine].Allowed)
	assert.False(t, decisions[store.ActionDeleteMachine].Allowed)
	assert.Equal(t, policy.ReasonNoMatchingRule, decisions[store.ActionDeleteMachine].Reason)
}
