package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, machine_id, requester_id, approval_type, proposed_changes,
	original_data, notes, approver_roles, status, decided_by, decided_at,
	rejection_reason, created_at, updated_at`

func scanRequest(row pgx.Row) (ApprovalRequest, error) {
	var r ApprovalRequest
	err := row.Scan(
		&r.ID, &r.MachineID, &r.RequesterID, &r.ApprovalType,
		&r.ProposedChanges, &r.OriginalData, &r.Notes, &r.ApproverRoles,
		&r.Status, &r.DecidedBy, &r.DecidedAt, &r.RejectionReason,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// InsertRequest persists a new PENDING request. The pending-uniqueness
// invariant surfaces as ErrPendingExists from the partial unique index.
func (s *Store) InsertRequest(ctx context.Context, r ApprovalRequest) (ApprovalRequest, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO approval_requests (
			machine_id, requester_id, approval_type, proposed_changes,
			original_data, notes, approver_roles, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING')
		RETURNING `+requestColumns,
		r.MachineID, r.RequesterID, r.ApprovalType, r.ProposedChanges,
		r.OriginalData, r.Notes, emptyIfNil(r.ApproverRoles),
	)
	created, err := scanRequest(row)
	if err != nil {
		return ApprovalRequest{}, mapWriteErr(err)
	}
	return created, nil
}

func (s *Store) GetRequest(ctx context.Context, id uuid.UUID) (ApprovalRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id)
	r, err := scanRequest(row)
	if err != nil {
		return ApprovalRequest{}, mapWriteErr(err)
	}
	return r, nil
}

type DecideParams struct {
	ID              uuid.UUID
	DeciderID       uuid.UUID
	Approved        bool
	Notes           string
	RejectionReason string
}

// DecideRequest applies the decision and, on approval, the machine flag flip
// in one transaction. The status write is guarded on PENDING so a concurrent
// second decision finds zero rows and reports ErrAlreadyProcessed instead of
// re-flipping the machine flag.
func (s *Store) DecideRequest(ctx context.Context, p DecideParams) (ApprovalRequest, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	status := StatusRejected
	if p.Approved {
		status = StatusApproved
	}

	row := tx.QueryRow(ctx, `
		UPDATE approval_requests SET
			status = $2,
			decided_by = $3,
			decided_at = now(),
			rejection_reason = $4,
			notes = CASE WHEN $5 <> '' THEN $5 ELSE notes END,
			updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+requestColumns,
		p.ID, status, p.DeciderID, p.RejectionReason, p.Notes,
	)
	decided, err := scanRequest(row)
	if err != nil {
		if mapWriteErr(err) == ErrNotFound {
			// Distinguish missing from already-decided for the caller.
			if _, getErr := s.GetRequest(ctx, p.ID); getErr == nil {
				return ApprovalRequest{}, ErrAlreadyProcessed
			}
			return ApprovalRequest{}, ErrNotFound
		}
		return ApprovalRequest{}, err
	}

	if p.Approved {
		if _, err := tx.Exec(ctx, `
			UPDATE machines SET is_approved = true, updated_at = now()
			WHERE id = $1`, decided.MachineID); err != nil {
			return ApprovalRequest{}, fmt.Errorf("failed to approve machine: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to commit decision: %w", err)
	}
	return decided, nil
}

// CancelRequest transitions a PENDING request to CANCELLED. Requester
// ownership is the manager's concern; this enforces only the state guard.
func (s *Store) CancelRequest(ctx context.Context, id uuid.UUID) (ApprovalRequest, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE approval_requests SET status = 'CANCELLED', updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+requestColumns, id)
	cancelled, err := scanRequest(row)
	if err != nil {
		if mapWriteErr(err) == ErrNotFound {
			if _, getErr := s.GetRequest(ctx, id); getErr == nil {
				return ApprovalRequest{}, ErrAlreadyProcessed
			}
			return ApprovalRequest{}, ErrNotFound
		}
		return ApprovalRequest{}, err
	}
	return cancelled, nil
}

type RequestUpdate struct {
	Notes           *string
	ApproverRoles   []uuid.UUID
	ProposedChanges map[string]any
}

func (s *Store) UpdateRequest(ctx context.Context, id uuid.UUID, u RequestUpdate) (ApprovalRequest, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE approval_requests SET
			notes = COALESCE($2, notes),
			approver_roles = COALESCE($3, approver_roles),
			proposed_changes = COALESCE($4, proposed_changes),
			updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns,
		id, u.Notes, u.ApproverRoles, u.ProposedChanges)
	updated, err := scanRequest(row)
	if err != nil {
		return ApprovalRequest{}, mapWriteErr(err)
	}
	return updated, nil
}

// RequestFilter is the richer listing contract: status, requester, type,
// machine, category, free text, date range and metadata key/value.
type RequestFilter struct {
	Status       *ApprovalStatus
	RequesterID  *uuid.UUID
	ApprovalType *ApprovalType
	MachineID    *uuid.UUID
	CategoryID   *uuid.UUID
	Search       string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	MetaKey      string
	MetaValue    string
	SortBy       string
	SortAsc      bool
	Limit        int64
	Offset       int64
}

var requestSortColumns = map[string]string{
	"created_at": "r.created_at",
	"updated_at": "r.updated_at",
	"status":     "r.status",
	"decided_at": "r.decided_at",
}

func (s *Store) ListRequests(ctx context.Context, f RequestFilter) ([]ApprovalRequest, int64, error) {
	where := "TRUE"
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND "+clause, len(args))
	}

	if f.Status != nil {
		add("r.status = $%d", *f.Status)
	}
	if f.RequesterID != nil {
		add("r.requester_id = $%d", *f.RequesterID)
	}
	if f.ApprovalType != nil {
		add("r.approval_type = $%d", *f.ApprovalType)
	}
	if f.MachineID != nil {
		add("r.machine_id = $%d", *f.MachineID)
	}
	if f.CategoryID != nil {
		add("m.category_id = $%d", *f.CategoryID)
	}
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		where += fmt.Sprintf(" AND (r.notes ILIKE '%%' || $%d || '%%' OR m.name ILIKE '%%' || $%d || '%%')", n, n)
	}
	if f.CreatedFrom != nil {
		add("r.created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("r.created_at <= $%d", *f.CreatedTo)
	}
	if f.MetaKey != "" {
		args = append(args, f.MetaKey, f.MetaValue)
		where += fmt.Sprintf(" AND r.proposed_changes ->> $%d = $%d", len(args)-1, len(args))
	}

	from := "approval_requests r JOIN machines m ON m.id = r.machine_id"

	var total int64
	if err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM "+from+" WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := requestSortColumns[f.SortBy]
	if !ok {
		sortCol = "r.created_at"
	}
	direction := "DESC"
	if f.SortAsc {
		direction = "ASC"
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`
		SELECT r.id, r.machine_id, r.requester_id, r.approval_type,
			r.proposed_changes, r.original_data, r.notes, r.approver_roles,
			r.status, r.decided_by, r.decided_at, r.rejection_reason,
			r.created_at, r.updated_at
		FROM %s WHERE %s
		ORDER BY %s %s, r.id ASC
		LIMIT $%d OFFSET $%d`, from, where, sortCol, direction, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var requests []ApprovalRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, r)
	}
	return requests, total, rows.Err()
}

type RequestStats struct {
	Total              int64
	ByStatus           map[ApprovalStatus]int64
	ByType             map[ApprovalType]int64
	AvgDecisionSeconds float64
	Overdue            int64
}

// RequestStatistics aggregates counts and latency; overdueAfter is the
// staleness window for PENDING requests.
func (s *Store) RequestStatistics(ctx context.Context, overdueAfter time.Duration) (RequestStats, error) {
	stats := RequestStats{
		ByStatus: make(map[ApprovalStatus]int64),
		ByType:   make(map[ApprovalType]int64),
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM approval_requests GROUP BY status`)
	if err != nil {
		return RequestStats{}, err
	}
	for rows.Next() {
		var status ApprovalStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return RequestStats{}, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return RequestStats{}, err
	}

	rows, err = s.pool.Query(ctx,
		`SELECT approval_type, count(*) FROM approval_requests GROUP BY approval_type`)
	if err != nil {
		return RequestStats{}, err
	}
	for rows.Next() {
		var typ ApprovalType
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			rows.Close()
			return RequestStats{}, err
		}
		stats.ByType[typ] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return RequestStats{}, err
	}

	var avg *float64
	if err := s.pool.QueryRow(ctx, `
		SELECT avg(EXTRACT(EPOCH FROM decided_at - created_at))
		FROM approval_requests WHERE decided_at IS NOT NULL`).Scan(&avg); err != nil {
		return RequestStats{}, err
	}
	if avg != nil {
		stats.AvgDecisionSeconds = *avg
	}

	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM approval_requests
		WHERE status = 'PENDING' AND created_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(overdueAfter.Seconds()))).Scan(&stats.Overdue); err != nil {
		return RequestStats{}, err
	}

	return stats, nil
}
