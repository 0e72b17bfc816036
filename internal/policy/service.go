package policy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/apperr"
	"github.com/plantops/mv-backend/internal/refs"
	"github.com/plantops/mv-backend/internal/store"
)

// RuleStore is the full persistence contract for rule administration.
type RuleStore interface {
	RuleSource
	CreateRule(ctx context.Context, r store.PermissionRule) (store.PermissionRule, error)
	UpdateRule(ctx context.Context, r store.PermissionRule) (store.PermissionRule, error)
	DeactivateRule(ctx context.Context, id uuid.UUID) error
	GetRule(ctx context.Context, id uuid.UUID) (store.PermissionRule, error)
	ListRules(ctx context.Context, f store.RuleFilter) ([]store.PermissionRule, int64, error)
	ActivePriorityExists(ctx context.Context, action store.ActionType, priority int32, exclude uuid.UUID) (bool, error)
}

// Service owns rule CRUD. Every mutation invalidates the evaluator cache
// for the affected action(s).
type Service struct {
	rules     RuleStore
	validator refs.Validator
	cache     RuleCache
}

func NewService(rules RuleStore, validator refs.Validator, cache RuleCache) *Service {
	return &Service{rules: rules, validator: validator, cache: cache}
}

// RuleInput is the administration payload for create and update.
type RuleInput struct {
	Name          string
	Description   string
	Action        store.ActionType
	UserIDs       []uuid.UUID
	RoleIDs       []uuid.UUID
	DepartmentIDs []uuid.UUID
	CategoryIDs   []uuid.UUID
	Permission    store.Permission
	ApproverRoles []uuid.UUID
	MaxValue      *float64
	Priority      int32
}

func (s *Service) CreateRule(ctx context.Context, in RuleInput, createdBy uuid.UUID) (store.PermissionRule, error) {
	if err := s.validateInput(ctx, in); err != nil {
		return store.PermissionRule{}, err
	}
	if err := s.checkPriority(ctx, in.Action, in.Priority, uuid.Nil); err != nil {
		return store.PermissionRule{}, err
	}

	created, err := s.rules.CreateRule(ctx, store.PermissionRule{
		Name:          in.Name,
		Description:   in.Description,
		Action:        in.Action,
		UserIDs:       in.UserIDs,
		RoleIDs:       in.RoleIDs,
		DepartmentIDs: in.DepartmentIDs,
		CategoryIDs:   in.CategoryIDs,
		Permission:    in.Permission,
		ApproverRoles: in.ApproverRoles,
		MaxValue:      in.MaxValue,
		Priority:      in.Priority,
		IsActive:      true,
		CreatedBy:     createdBy,
	})
	if err != nil {
		return store.PermissionRule{}, mapRuleErr(err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, created.Action)
	}
	return created, nil
}

func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, in RuleInput) (store.PermissionRule, error) {
	existing, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return store.PermissionRule{}, mapRuleErr(err)
	}

	if err := s.validateInput(ctx, in); err != nil {
		return store.PermissionRule{}, err
	}
	if err := s.checkPriority(ctx, in.Action, in.Priority, id); err != nil {
		return store.PermissionRule{}, err
	}

	// Moving a rule to another action must flush both actions' cache
	// entries, so remember where the rule pointed before the overwrite.
	previousAction := existing.Action

	existing.Name = in.Name
	existing.Description = in.Description
	existing.Action = in.Action
	existing.UserIDs = in.UserIDs
	existing.RoleIDs = in.RoleIDs
	existing.DepartmentIDs = in.DepartmentIDs
	existing.CategoryIDs = in.CategoryIDs
	existing.Permission = in.Permission
	existing.ApproverRoles = in.ApproverRoles
	existing.MaxValue = in.MaxValue
	existing.Priority = in.Priority

	updated, err := s.rules.UpdateRule(ctx, existing)
	if err != nil {
		return store.PermissionRule{}, mapRuleErr(err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, updated.Action)
		if previousAction != updated.Action {
			s.cache.Invalidate(ctx, previousAction)
		}
	}
	return updated, nil
}

// DeleteRule soft-disables; rules are never removed from the table so the
// evaluation history stays reconstructable.
func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return mapRuleErr(err)
	}
	if err := s.rules.DeactivateRule(ctx, id); err != nil {
		return mapRuleErr(err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, rule.Action)
	}
	return nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (store.PermissionRule, error) {
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return store.PermissionRule{}, mapRuleErr(err)
	}
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context, f store.RuleFilter) ([]store.PermissionRule, int64, error) {
	rules, total, err := s.rules.ListRules(ctx, f)
	if err != nil {
		return nil, 0, apperr.Internal("Failed to list rules", err)
	}
	return rules, total, nil
}

func (s *Service) validateInput(ctx context.Context, in RuleInput) error {
	var details []apperr.FieldError
	if in.Name == "" {
		details = append(details, apperr.FieldError{Field: "name", Message: "name is required"})
	}
	if !store.ValidActionType(in.Action) {
		details = append(details, apperr.FieldError{Field: "action", Message: "unknown action type"})
	}
	if !store.ValidPermission(in.Permission) {
		details = append(details, apperr.FieldError{Field: "permission", Message: "must be ALLOWED, DENIED or REQUIRES_APPROVAL"})
	}
	if in.Permission == store.PermissionRequiresApproval && len(in.ApproverRoles) == 0 {
		details = append(details, apperr.FieldError{Field: "approverRoles", Message: "required when permission is REQUIRES_APPROVAL"})
	}
	if in.Priority < 0 {
		details = append(details, apperr.FieldError{Field: "priority", Message: "must not be negative"})
	}
	if len(details) > 0 {
		return apperr.Validation("Invalid rule", details)
	}

	// Existence checks happen before any write so a bad reference never
	// produces a partial mutation.
	for _, check := range []struct {
		kind  store.RefKind
		field string
		ids   []uuid.UUID
	}{
		{store.RefUsers, "userIds", in.UserIDs},
		{store.RefRoles, "roleIds", in.RoleIDs},
		{store.RefDepartments, "departmentIds", in.DepartmentIDs},
		{store.RefCategories, "categoryIds", in.CategoryIDs},
		{store.RefRoles, "approverRoles", in.ApproverRoles},
	} {
		missing, err := s.validator.ExistsAll(ctx, check.kind, check.ids)
		if err != nil {
			return apperr.Internal("Reference validation failed", err)
		}
		for _, id := range missing {
			details = append(details, apperr.FieldError{Field: check.field, Message: "unknown id " + id.String()})
		}
	}
	if len(details) > 0 {
		return apperr.Validation("Invalid rule references", details)
	}
	return nil
}

func (s *Service) checkPriority(ctx context.Context, action store.ActionType, priority int32, exclude uuid.UUID) error {
	// Priority 0 marks unscoped fallback rules and is intentionally
	// non-unique.
	if priority == 0 {
		return nil
	}
	taken, err := s.rules.ActivePriorityExists(ctx, action, priority, exclude)
	if err != nil {
		return apperr.Internal("Priority check failed", err)
	}
	if taken {
		return apperr.Newf(apperr.CodeDuplicatePriority,
			"An active rule with priority %d already exists for %s", priority, action)
	}
	return nil
}

func mapRuleErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("Rule")
	case errors.Is(err, store.ErrDuplicatePriority):
		return apperr.Wrap(apperr.CodeDuplicatePriority, "An active rule with this priority already exists for the action", err)
	default:
		return apperr.Internal("Rule storage failure", err)
	}
}
