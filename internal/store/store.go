package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors the service layer branches on. Conflicts surface from the
// partial unique indexes, not from application-level checks, so concurrent
// writers cannot both pass a pre-check and insert.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicatePriority = errors.New("active rule with this priority already exists for action")
	ErrPendingExists     = errors.New("pending approval request already exists for machine and type")
	ErrAlreadyProcessed  = errors.New("request is no longer pending")
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// mapWriteErr converts pgx errors into the store's sentinel errors by
// constraint name, so callers never inspect SQLSTATE themselves.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "permission_rules_active_priority_idx":
			return ErrDuplicatePriority
		case "approval_requests_pending_idx":
			return ErrPendingExists
		}
	}
	return err
}
