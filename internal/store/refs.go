package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RefKind names a reference table the validator may consult. The allowlist
// keeps kind strings out of SQL identifiers.
type RefKind string

const (
	RefUsers         RefKind = "users"
	RefRoles         RefKind = "roles"
	RefDepartments   RefKind = "departments"
	RefCategories    RefKind = "categories"
	RefMachines      RefKind = "machines"
	RefQualityChecks RefKind = "quality_checks"
)

var refTables = map[RefKind]string{
	RefUsers:         "users",
	RefRoles:         "roles",
	RefDepartments:   "departments",
	RefCategories:    "categories",
	RefMachines:      "machines",
	RefQualityChecks: "quality_checks",
}

// RefExists reports whether an active record with the id exists for kind.
func (s *Store) RefExists(ctx context.Context, kind RefKind, id uuid.UUID) (bool, error) {
	table, ok := refTables[kind]
	if !ok {
		return false, fmt.Errorf("unknown reference kind %q", kind)
	}

	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1", table)
	// quality checks and approval rows have no is_active soft-delete flag
	// with existence semantics; machines and reference tables do.
	if kind != RefQualityChecks {
		query += " AND is_active"
	}
	query += ")"

	var exists bool
	err := s.pool.QueryRow(ctx, query, id).Scan(&exists)
	return exists, err
}

// RefMissing returns the subset of ids with no active record for kind.
func (s *Store) RefMissing(ctx context.Context, kind RefKind, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table, ok := refTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown reference kind %q", kind)
	}

	query := fmt.Sprintf(`
		SELECT candidate.id FROM unnest($1::uuid[]) AS candidate(id)
		WHERE NOT EXISTS (SELECT 1 FROM %s t WHERE t.id = candidate.id`, table)
	if kind != RefQualityChecks {
		query += " AND t.is_active"
	}
	query += ")"

	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}
