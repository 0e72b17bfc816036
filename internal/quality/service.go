package quality

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/apperr"
	"github.com/plantops/mv-backend/internal/logging"
	"github.com/plantops/mv-backend/internal/store"
)

type CheckStore interface {
	GetQualityCheck(ctx context.Context, id uuid.UUID) (store.QualityCheck, error)
	UpdateCheckApproval(ctx context.Context, id uuid.UUID, status store.CheckApprovalStatus, active *bool) (store.QualityCheck, error)
	UpdateCheckInspection(ctx context.Context, id uuid.UUID, u store.CheckInspectionUpdate) (store.QualityCheck, error)
}

// Service is the write surface for quality checks. Each write commits
// first, then the synchronizer mirrors the result into the ledger;
// synchronizer failures come back as warnings on the response.
type Service struct {
	checks CheckStore
	sync   *Synchronizer
}

func NewService(checks CheckStore, sync *Synchronizer) *Service {
	return &Service{checks: checks, sync: sync}
}

// UpdateApproval changes the check's own approval field and synchronizes
// all linked ledger rows. The returned warnings are non-empty when ledger
// sync failed after the check update had already committed; the check
// update is not rolled back in that case.
func (s *Service) UpdateApproval(ctx context.Context, checkID uuid.UUID, actorID uuid.UUID, status store.CheckApprovalStatus, active *bool) (store.QualityCheck, []string, error) {
	switch status {
	case store.CheckPending, store.CheckApproved, store.CheckRejected:
	default:
		return store.QualityCheck{}, nil, apperr.Validation("Invalid approval status", []apperr.FieldError{
			{Field: "approvalStatus", Message: "must be PENDING, APPROVED or REJECTED"},
		})
	}

	check, err := s.checks.UpdateCheckApproval(ctx, checkID, status, active)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.QualityCheck{}, nil, apperr.NotFound("Quality check")
		}
		return store.QualityCheck{}, nil, apperr.Internal("Failed to update quality check", err)
	}

	var warnings []string
	if err := s.sync.SyncFromCheck(ctx, check, actorID); err != nil {
		logging.Error("quality ledger sync failed", "check_id", checkID, "error", err)
		warnings = append(warnings, "quality approval ledger could not be fully synchronized: "+err.Error())
	}
	return check, warnings, nil
}

// EditInspection updates the gated inspection attributes of a check. The
// edit resets the check's own approval field to PENDING and reopens any
// REJECTED ledger rows so the corrected data can be re-reviewed.
func (s *Service) EditInspection(ctx context.Context, checkID uuid.UUID, actorID uuid.UUID, u store.CheckInspectionUpdate) (store.QualityCheck, []string, error) {
	if u.QualityScore == nil && u.InspectionDate == nil && u.NextInspectionDate == nil {
		return store.QualityCheck{}, nil, apperr.Validation("Nothing to update", []apperr.FieldError{
			{Field: "body", Message: "at least one inspection attribute is required"},
		})
	}

	check, err := s.checks.UpdateCheckInspection(ctx, checkID, u)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.QualityCheck{}, nil, apperr.NotFound("Quality check")
		}
		return store.QualityCheck{}, nil, apperr.Internal("Failed to update quality check", err)
	}

	var warnings []string
	if reopened, err := s.sync.ReopenRejected(ctx, checkID); err != nil {
		logging.Error("failed to reopen rejected ledger rows", "check_id", checkID, "error", err)
		warnings = append(warnings, "rejected ledger rows could not be reopened: "+err.Error())
	} else if reopened > 0 {
		logging.Info("reopened rejected quality approvals after inspection edit",
			"check_id", checkID, "count", reopened)
	}

	if err := s.sync.SyncFromCheck(ctx, check, actorID); err != nil {
		logging.Error("quality ledger sync failed", "check_id", checkID, "error", err)
		warnings = append(warnings, "quality approval ledger could not be fully synchronized: "+err.Error())
	}
	return check, warnings, nil
}

func (s *Service) Get(ctx context.Context, checkID uuid.UUID) (store.QualityCheck, error) {
	check, err := s.checks.GetQualityCheck(ctx, checkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.QualityCheck{}, apperr.NotFound("Quality check")
		}
		return store.QualityCheck{}, apperr.Internal("Failed to load quality check", err)
	}
	return check, nil
}
