// Package quality keeps the quality-control approval ledger consistent with
// the approval field carried by quality checks themselves.
package quality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/store"
)

type LedgerStore interface {
	ListQualityApprovalsByCheck(ctx context.Context, checkID uuid.UUID) ([]store.QualityApproval, error)
	SyncQualityApproval(ctx context.Context, q store.QualityApproval) error
	ReopenRejectedByCheck(ctx context.Context, checkID uuid.UUID) (int64, error)
}

// Synchronizer mirrors a quality check's three-state approval field onto
// every linked ledger row. It is invoked after the triggering write has
// committed; its failures are reported back as warnings, never as a
// failure of the triggering operation.
type Synchronizer struct {
	ledger LedgerStore
	now    func() time.Time
}

func NewSynchronizer(ledger LedgerStore) *Synchronizer {
	return &Synchronizer{ledger: ledger, now: time.Now}
}

// SyncFromCheck updates all ledger rows linked to the check. Every row is
// attempted even when an earlier one fails; the combined error carries the
// per-row failures.
func (s *Synchronizer) SyncFromCheck(ctx context.Context, check store.QualityCheck, actorID uuid.UUID) error {
	rows, err := s.ledger.ListQualityApprovalsByCheck(ctx, check.ID)
	if err != nil {
		return fmt.Errorf("failed to list ledger rows for check %s: %w", check.ID, err)
	}

	var errs []error
	for _, row := range rows {
		updated := s.applyCheck(row, check, actorID)
		if err := s.ledger.SyncQualityApproval(ctx, updated); err != nil {
			errs = append(errs, fmt.Errorf("ledger row %s: %w", row.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Synchronizer) applyCheck(row store.QualityApproval, check store.QualityCheck, actorID uuid.UUID) store.QualityApproval {
	row.Status = ledgerStatus(check.ApprovalStatus)

	if check.QualityScore != nil {
		row.QualityScore = check.QualityScore
	}
	if check.InspectionDate != nil {
		row.InspectionDate = check.InspectionDate
	}
	if check.NextInspectionDate != nil {
		row.NextInspectionDate = check.NextInspectionDate
	}

	switch row.Status {
	case store.StatusApproved:
		now := s.now()
		if row.DecidedAt == nil {
			row.DecidedAt = &now
		}
		if row.DecidedBy == nil && actorID != uuid.Nil {
			row.DecidedBy = &actorID
		}
		if check.IsActive && !row.MachineActivated {
			row.MachineActivated = true
			row.ActivationDate = &now
		}
	case store.StatusRejected:
		now := s.now()
		if row.DecidedAt == nil {
			row.DecidedAt = &now
		}
		if row.DecidedBy == nil && actorID != uuid.Nil {
			row.DecidedBy = &actorID
		}
	case store.StatusPending:
		row.DecidedBy = nil
		row.DecidedAt = nil
	}

	return row
}

// ReopenRejected resets REJECTED ledger rows for the check back to PENDING.
// This transition exists only for the inspection-edit flow; it is not a
// general REJECTED-to-PENDING capability of the state machine.
func (s *Synchronizer) ReopenRejected(ctx context.Context, checkID uuid.UUID) (int64, error) {
	return s.ledger.ReopenRejectedByCheck(ctx, checkID)
}

// ledgerStatus maps the check's three-state field onto the four-state
// ledger enum. CANCELLED is never produced by synchronization.
func ledgerStatus(status store.CheckApprovalStatus) store.ApprovalStatus {
	switch status {
	case store.CheckApproved:
		return store.StatusApproved
	case store.CheckRejected:
		return store.StatusRejected
	default:
		return store.StatusPending
	}
}
