// Package refs confirms that ids referenced by rules and requests point at
// existing, active records before any mutation is accepted.
package refs

import (
	"context"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/store"
)

// Validator is the reference-existence contract consumed by the policy and
// approvals services.
type Validator interface {
	Exists(ctx context.Context, kind store.RefKind, id uuid.UUID) (bool, error)
	// ExistsAll returns the ids that do NOT resolve; empty means all valid.
	ExistsAll(ctx context.Context, kind store.RefKind, ids []uuid.UUID) ([]uuid.UUID, error)
}

type DBValidator struct {
	store *store.Store
}

func NewValidator(s *store.Store) *DBValidator {
	return &DBValidator{store: s}
}

func (v *DBValidator) Exists(ctx context.Context, kind store.RefKind, id uuid.UUID) (bool, error) {
	return v.store.RefExists(ctx, kind, id)
}

func (v *DBValidator) ExistsAll(ctx context.Context, kind store.RefKind, ids []uuid.UUID) ([]uuid.UUID, error) {
	return v.store.RefMissing(ctx, kind, ids)
}
