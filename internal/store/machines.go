package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const machineColumns = `id, name, category_id, department_id, value, is_approved,
	is_active, created_at, updated_at`

func scanMachine(row pgx.Row) (Machine, error) {
	var m Machine
	err := row.Scan(
		&m.ID, &m.Name, &m.CategoryID, &m.DepartmentID, &m.Value,
		&m.IsApproved, &m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func (s *Store) GetMachine(ctx context.Context, id uuid.UUID) (Machine, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE id = $1`, id)
	m, err := scanMachine(row)
	if err != nil {
		return Machine{}, mapWriteErr(err)
	}
	return m, nil
}

func (s *Store) InsertMachine(ctx context.Context, m Machine) (Machine, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO machines (name, category_id, department_id, value, is_approved, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+machineColumns,
		m.Name, m.CategoryID, m.DepartmentID, m.Value, m.IsApproved, m.IsActive)
	created, err := scanMachine(row)
	if err != nil {
		return Machine{}, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, role_id, department_id, is_active, created_at
		FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.DepartmentID, &u.IsActive, &u.CreatedAt); err != nil {
		return User{}, mapWriteErr(err)
	}
	return u, nil
}

// UsersByRoles resolves active users holding any of the roles, used to fan
// out approver notifications.
func (s *Store) UsersByRoles(ctx context.Context, roleIDs []uuid.UUID) ([]User, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, name, role_id, department_id, is_active, created_at
		FROM users WHERE role_id = ANY($1) AND is_active
		ORDER BY email ASC`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.DepartmentID, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// EmailsByIDs resolves user ids to email addresses for the dispatcher.
func (s *Store) EmailsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, email FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		result[id] = email
	}
	return result, rows.Err()
}
