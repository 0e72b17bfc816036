// Package policy holds the permission rule store access and the evaluator
// that resolves an actor's decision for a protected action.
package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/logging"
	"github.com/plantops/mv-backend/internal/store"
)

// Actor is the evaluation subject.
type Actor struct {
	UserID       uuid.UUID
	RoleID       uuid.UUID
	DepartmentID uuid.UUID
}

// ResourceContext carries the resource-side matching inputs.
type ResourceContext struct {
	CategoryID   *uuid.UUID
	NumericValue *float64
}

// Decision is the evaluation outcome for one action.
type Decision struct {
	Action           store.ActionType          `json:"action"`
	Allowed          bool                      `json:"allowed"`
	RequiresApproval bool                      `json:"requiresApproval"`
	ApproverRoles    []uuid.UUID               `json:"approverRoles,omitempty"`
	MatchedRule      *store.PermissionRule     `json:"matchedRule,omitempty"`
	Reason           string                    `json:"reason,omitempty"`
}

const ReasonNoMatchingRule = "no matching rule"

// RuleSource is the read side the evaluator needs.
type RuleSource interface {
	ListActiveRulesByAction(ctx context.Context, action store.ActionType) ([]store.PermissionRule, error)
}

type Evaluator struct {
	rules RuleSource
	cache RuleCache
}

func NewEvaluator(rules RuleSource, cache RuleCache) *Evaluator {
	return &Evaluator{rules: rules, cache: cache}
}

// Evaluate walks the active rules for action from highest priority down and
// returns the first match's permission. No match is a denial, never an
// implicit allow.
func (e *Evaluator) Evaluate(ctx context.Context, actor Actor, action store.ActionType, rctx ResourceContext) (Decision, error) {
	if !store.ValidActionType(action) {
		return Decision{}, fmt.Errorf("unknown action type %q", action)
	}

	rules, err := e.activeRules(ctx, action)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load rules for %s: %w", action, err)
	}

	for i := range rules {
		rule := rules[i]
		if !ruleMatches(rule, actor, rctx) {
			continue
		}
		switch rule.Permission {
		case store.PermissionAllowed:
			return Decision{Action: action, Allowed: true, MatchedRule: &rule}, nil
		case store.PermissionRequiresApproval:
			return Decision{
				Action:           action,
				RequiresApproval: true,
				ApproverRoles:    rule.ApproverRoles,
				MatchedRule:      &rule,
			}, nil
		default:
			return Decision{
				Action:      action,
				MatchedRule: &rule,
				Reason:      fmt.Sprintf("denied by rule %q", rule.Name),
			}, nil
		}
	}

	return Decision{Action: action, Reason: ReasonNoMatchingRule}, nil
}

// AllPermissions evaluates every known action. A failure for one action is
// recorded as a denial on that entry and does not abort the rest.
func (e *Evaluator) AllPermissions(ctx context.Context, actor Actor, rctx ResourceContext) map[store.ActionType]Decision {
	result := make(map[store.ActionType]Decision, len(store.AllActionTypes))
	for _, action := range store.AllActionTypes {
		decision, err := e.Evaluate(ctx, actor, action, rctx)
		if err != nil {
			logging.Error("permission evaluation failed", "action", action, "user_id", actor.UserID, "error", err)
			decision = Decision{Action: action, Reason: "evaluation failed"}
		}
		result[action] = decision
	}
	return result
}

func (e *Evaluator) activeRules(ctx context.Context, action store.ActionType) ([]store.PermissionRule, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, action); ok {
			return cached, nil
		}
	}

	rules, err := e.rules.ListActiveRulesByAction(ctx, action)
	if err != nil {
		return nil, err
	}

	// The store orders its reads, but cached entries and fakes may not;
	// re-sorting keeps evaluation order deterministic regardless of source.
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})

	if e.cache != nil {
		e.cache.Set(ctx, action, rules)
	}
	return rules, nil
}

// ruleMatches applies the scoping sets and the value ceiling. Empty sets are
// wildcards; a set ceiling with no resource value fails closed.
func ruleMatches(rule store.PermissionRule, actor Actor, rctx ResourceContext) bool {
	if len(rule.UserIDs) > 0 && !containsID(rule.UserIDs, actor.UserID) {
		return false
	}
	if len(rule.RoleIDs) > 0 && !containsID(rule.RoleIDs, actor.RoleID) {
		return false
	}
	if len(rule.DepartmentIDs) > 0 && !containsID(rule.DepartmentIDs, actor.DepartmentID) {
		return false
	}
	if len(rule.CategoryIDs) > 0 {
		if rctx.CategoryID == nil || !containsID(rule.CategoryIDs, *rctx.CategoryID) {
			return false
		}
	}
	if rule.MaxValue != nil {
		if rctx.NumericValue == nil || *rctx.NumericValue > *rule.MaxValue {
			return false
		}
	}
	return true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
