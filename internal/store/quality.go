package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const checkColumns = `id, machine_id, inspector_id, approval_status, quality_score,
	inspection_date, next_inspection_date, is_active, created_at, updated_at`

const qualityApprovalColumns = `id, machine_id, quality_check_id, requester_id,
	approval_type, status, quality_score, inspection_date, next_inspection_date,
	approvers, decided_by, decided_at, rejection_reason, machine_activated,
	activation_date, created_at, updated_at`

func scanCheck(row pgx.Row) (QualityCheck, error) {
	var c QualityCheck
	err := row.Scan(
		&c.ID, &c.MachineID, &c.InspectorID, &c.ApprovalStatus,
		&c.QualityScore, &c.InspectionDate, &c.NextInspectionDate,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanQualityApproval(row pgx.Row) (QualityApproval, error) {
	var q QualityApproval
	err := row.Scan(
		&q.ID, &q.MachineID, &q.QualityCheckID, &q.RequesterID,
		&q.ApprovalType, &q.Status, &q.QualityScore, &q.InspectionDate,
		&q.NextInspectionDate, &q.Approvers, &q.DecidedBy, &q.DecidedAt,
		&q.RejectionReason, &q.MachineActivated, &q.ActivationDate,
		&q.CreatedAt, &q.UpdatedAt,
	)
	return q, err
}

func (s *Store) GetQualityCheck(ctx context.Context, id uuid.UUID) (QualityCheck, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkColumns+` FROM quality_checks WHERE id = $1`, id)
	c, err := scanCheck(row)
	if err != nil {
		return QualityCheck{}, mapWriteErr(err)
	}
	return c, nil
}

func (s *Store) InsertQualityCheck(ctx context.Context, c QualityCheck) (QualityCheck, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO quality_checks (
			machine_id, inspector_id, approval_status, quality_score,
			inspection_date, next_inspection_date, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+checkColumns,
		c.MachineID, c.InspectorID, c.ApprovalStatus, c.QualityScore,
		c.InspectionDate, c.NextInspectionDate, c.IsActive)
	created, err := scanCheck(row)
	if err != nil {
		return QualityCheck{}, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) UpdateCheckApproval(ctx context.Context, id uuid.UUID, status CheckApprovalStatus, active *bool) (QualityCheck, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE quality_checks SET
			approval_status = $2,
			is_active = COALESCE($3, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING `+checkColumns, id, status, active)
	c, err := scanCheck(row)
	if err != nil {
		return QualityCheck{}, mapWriteErr(err)
	}
	return c, nil
}

type CheckInspectionUpdate struct {
	QualityScore       *float64
	InspectionDate     *time.Time
	NextInspectionDate *time.Time
}

// UpdateCheckInspection edits the gated inspection attributes. The caller
// decides whether the edit reopens rejected ledger rows.
func (s *Store) UpdateCheckInspection(ctx context.Context, id uuid.UUID, u CheckInspectionUpdate) (QualityCheck, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE quality_checks SET
			quality_score = COALESCE($2, quality_score),
			inspection_date = COALESCE($3, inspection_date),
			next_inspection_date = COALESCE($4, next_inspection_date),
			approval_status = 'PENDING',
			updated_at = now()
		WHERE id = $1
		RETURNING `+checkColumns,
		id, u.QualityScore, u.InspectionDate, u.NextInspectionDate)
	c, err := scanCheck(row)
	if err != nil {
		return QualityCheck{}, mapWriteErr(err)
	}
	return c, nil
}

func (s *Store) InsertQualityApproval(ctx context.Context, q QualityApproval) (QualityApproval, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO quality_approvals (
			machine_id, quality_check_id, requester_id, approval_type, status,
			quality_score, inspection_date, next_inspection_date, approvers
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+qualityApprovalColumns,
		q.MachineID, q.QualityCheckID, q.RequesterID, q.ApprovalType, q.Status,
		q.QualityScore, q.InspectionDate, q.NextInspectionDate, emptyIfNil(q.Approvers))
	created, err := scanQualityApproval(row)
	if err != nil {
		return QualityApproval{}, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) ListQualityApprovalsByCheck(ctx context.Context, checkID uuid.UUID) ([]QualityApproval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+qualityApprovalColumns+` FROM quality_approvals
		WHERE quality_check_id = $1
		ORDER BY created_at ASC, id ASC`, checkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []QualityApproval
	for rows.Next() {
		q, err := scanQualityApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, q)
	}
	return approvals, rows.Err()
}

// SyncQualityApproval writes the synchronizer's view of one ledger row.
func (s *Store) SyncQualityApproval(ctx context.Context, q QualityApproval) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quality_approvals SET
			status = $2,
			quality_score = $3,
			inspection_date = $4,
			next_inspection_date = $5,
			decided_by = $6,
			decided_at = $7,
			machine_activated = $8,
			activation_date = $9,
			updated_at = now()
		WHERE id = $1`,
		q.ID, q.Status, q.QualityScore, q.InspectionDate, q.NextInspectionDate,
		q.DecidedBy, q.DecidedAt, q.MachineActivated, q.ActivationDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReopenRejectedByCheck resets REJECTED ledger rows linked to a check back
// to PENDING. Used only by the inspection-edit flow.
func (s *Store) ReopenRejectedByCheck(ctx context.Context, checkID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quality_approvals SET
			status = 'PENDING',
			decided_by = NULL,
			decided_at = NULL,
			rejection_reason = '',
			updated_at = now()
		WHERE quality_check_id = $1 AND status = 'REJECTED'`, checkID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
