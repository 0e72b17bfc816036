package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ruleColumns = `id, name, description, action, user_ids, role_ids, department_ids,
	category_ids, permission, approver_roles, max_value, priority, is_active,
	created_by, created_at, updated_at`

func scanRule(row pgx.Row) (PermissionRule, error) {
	var r PermissionRule
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.Action,
		&r.UserIDs, &r.RoleIDs, &r.DepartmentIDs, &r.CategoryIDs,
		&r.Permission, &r.ApproverRoles, &r.MaxValue, &r.Priority,
		&r.IsActive, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) CreateRule(ctx context.Context, r PermissionRule) (PermissionRule, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO permission_rules (
			name, description, action, user_ids, role_ids, department_ids,
			category_ids, permission, approver_roles, max_value, priority,
			is_active, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+ruleColumns,
		r.Name, r.Description, r.Action, emptyIfNil(r.UserIDs), emptyIfNil(r.RoleIDs),
		emptyIfNil(r.DepartmentIDs), emptyIfNil(r.CategoryIDs), r.Permission,
		emptyIfNil(r.ApproverRoles), r.MaxValue, r.Priority, r.IsActive, r.CreatedBy,
	)
	created, err := scanRule(row)
	if err != nil {
		return PermissionRule{}, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) UpdateRule(ctx context.Context, r PermissionRule) (PermissionRule, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE permission_rules SET
			name = $2, description = $3, action = $4, user_ids = $5,
			role_ids = $6, department_ids = $7, category_ids = $8,
			permission = $9, approver_roles = $10, max_value = $11,
			priority = $12, is_active = $13, updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns,
		r.ID, r.Name, r.Description, r.Action, emptyIfNil(r.UserIDs),
		emptyIfNil(r.RoleIDs), emptyIfNil(r.DepartmentIDs), emptyIfNil(r.CategoryIDs),
		r.Permission, emptyIfNil(r.ApproverRoles), r.MaxValue, r.Priority, r.IsActive,
	)
	updated, err := scanRule(row)
	if err != nil {
		return PermissionRule{}, mapWriteErr(err)
	}
	return updated, nil
}

// DeactivateRule soft-disables a rule; the evaluation path never hard-deletes.
func (s *Store) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE permission_rules SET is_active = false, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (PermissionRule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM permission_rules WHERE id = $1`, id)
	r, err := scanRule(row)
	if err != nil {
		return PermissionRule{}, mapWriteErr(err)
	}
	return r, nil
}

// ListActiveRulesByAction returns the evaluation set for an action in
// deterministic order: priority descending, then creation time, then id.
func (s *Store) ListActiveRulesByAction(ctx context.Context, action ActionType) ([]PermissionRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+` FROM permission_rules
		WHERE action = $1 AND is_active
		ORDER BY priority DESC, created_at ASC, id ASC`, action)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []PermissionRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

type RuleFilter struct {
	Action     *ActionType
	Permission *Permission
	IsActive   *bool
	Limit      int64
	Offset     int64
}

func (s *Store) ListRules(ctx context.Context, f RuleFilter) ([]PermissionRule, int64, error) {
	where := "TRUE"
	args := []any{}
	if f.Action != nil {
		args = append(args, *f.Action)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.Permission != nil {
		args = append(args, *f.Permission)
		where += fmt.Sprintf(" AND permission = $%d", len(args))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		where += fmt.Sprintf(" AND is_active = $%d", len(args))
	}

	var total int64
	if err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM permission_rules WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM permission_rules WHERE %s
		ORDER BY action ASC, priority DESC, created_at ASC
		LIMIT $%d OFFSET $%d`, ruleColumns, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rules []PermissionRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, 0, err
		}
		rules = append(rules, r)
	}
	return rules, total, rows.Err()
}

// ActivePriorityExists reports whether another active rule holds the same
// non-zero priority for the action. A pre-check only; the partial unique
// index is the authority under concurrency.
func (s *Store) ActivePriorityExists(ctx context.Context, action ActionType, priority int32, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM permission_rules
			WHERE action = $1 AND priority = $2 AND is_active AND priority <> 0 AND id <> $3
		)`, action, priority, exclude).Scan(&exists)
	return exists, err
}

func emptyIfNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
