// Package approvals owns the approval-request lifecycle: creation,
// decision, cancellation and the machine-flag side effect of an approval.
package approvals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/apperr"
	"github.com/plantops/mv-backend/internal/logging"
	"github.com/plantops/mv-backend/internal/refs"
	"github.com/plantops/mv-backend/internal/store"
)

// RequestStore is the persistence contract for approval requests. Decide
// must apply the status write and the machine flag flip atomically.
type RequestStore interface {
	InsertRequest(ctx context.Context, r store.ApprovalRequest) (store.ApprovalRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (store.ApprovalRequest, error)
	DecideRequest(ctx context.Context, p store.DecideParams) (store.ApprovalRequest, error)
	CancelRequest(ctx context.Context, id uuid.UUID) (store.ApprovalRequest, error)
	UpdateRequest(ctx context.Context, id uuid.UUID, u store.RequestUpdate) (store.ApprovalRequest, error)
	ListRequests(ctx context.Context, f store.RequestFilter) ([]store.ApprovalRequest, int64, error)
	RequestStatistics(ctx context.Context, overdueAfter time.Duration) (store.RequestStats, error)
}

// Notifier fans out request events. Implementations must never fail the
// triggering operation; delivery problems are theirs to log.
type Notifier interface {
	RequestCreated(ctx context.Context, req store.ApprovalRequest)
	RequestDecided(ctx context.Context, req store.ApprovalRequest)
}

type Manager struct {
	requests     RequestStore
	validator    refs.Validator
	notifier     Notifier
	overdueAfter time.Duration
}

func NewManager(requests RequestStore, validator refs.Validator, notifier Notifier, overdueAfter time.Duration) *Manager {
	if overdueAfter <= 0 {
		overdueAfter = 7 * 24 * time.Hour
	}
	return &Manager{
		requests:     requests,
		validator:    validator,
		notifier:     notifier,
		overdueAfter: overdueAfter,
	}
}

type CreateInput struct {
	MachineID       uuid.UUID
	RequesterID     uuid.UUID
	ApprovalType    store.ApprovalType
	ProposedChanges map[string]any
	OriginalData    map[string]any
	Notes           string
	ApproverRoles   []uuid.UUID
}

func (m *Manager) Create(ctx context.Context, in CreateInput) (store.ApprovalRequest, error) {
	var details []apperr.FieldError
	if in.MachineID == uuid.Nil {
		details = append(details, apperr.FieldError{Field: "machineId", Message: "machineId is required"})
	}
	if in.RequesterID == uuid.Nil {
		details = append(details, apperr.FieldError{Field: "requesterId", Message: "requesterId is required"})
	}
	if !store.ValidApprovalType(in.ApprovalType) {
		details = append(details, apperr.FieldError{Field: "approvalType", Message: "unknown approval type"})
	}
	if len(details) > 0 {
		return store.ApprovalRequest{}, apperr.Validation("Invalid approval request", details)
	}

	// Missing machine or requester is NOT_FOUND, not a validation error:
	// the payload shape is fine, the referenced record is not there.
	if err := m.requireRef(ctx, store.RefMachines, in.MachineID, "Machine"); err != nil {
		return store.ApprovalRequest{}, err
	}
	if err := m.requireRef(ctx, store.RefUsers, in.RequesterID, "Requester"); err != nil {
		return store.ApprovalRequest{}, err
	}
	if missing, err := m.validator.ExistsAll(ctx, store.RefRoles, in.ApproverRoles); err != nil {
		return store.ApprovalRequest{}, apperr.Internal("Reference validation failed", err)
	} else {
		for _, id := range missing {
			details = append(details, apperr.FieldError{Field: "approverRoles", Message: "unknown id " + id.String()})
		}
	}
	if len(details) > 0 {
		return store.ApprovalRequest{}, apperr.Validation("Invalid approval request references", details)
	}

	created, err := m.requests.InsertRequest(ctx, store.ApprovalRequest{
		MachineID:       in.MachineID,
		RequesterID:     in.RequesterID,
		ApprovalType:    in.ApprovalType,
		ProposedChanges: in.ProposedChanges,
		OriginalData:    in.OriginalData,
		Notes:           in.Notes,
		ApproverRoles:   in.ApproverRoles,
	})
	if err != nil {
		if errors.Is(err, store.ErrPendingExists) {
			return store.ApprovalRequest{}, apperr.Wrap(apperr.CodePendingExists,
				"A pending approval request already exists for this machine and type", err)
		}
		return store.ApprovalRequest{}, apperr.Internal("Failed to create approval request", err)
	}

	if m.notifier != nil {
		m.notifier.RequestCreated(ctx, created)
	}
	return created, nil
}

type DecideInput struct {
	RequestID       uuid.UUID
	DeciderID       uuid.UUID
	Approved        bool
	Notes           string
	RejectionReason string
}

// Decide closes a pending request. On approval the machine's approval flag
// is flipped in the same transaction as the status write, so a crash never
// leaves an APPROVED request pointing at an unapproved machine. A repeated
// decision reports ALREADY_PROCESSED and does not re-flip the flag.
func (m *Manager) Decide(ctx context.Context, in DecideInput) (store.ApprovalRequest, error) {
	existing, err := m.requests.GetRequest(ctx, in.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ApprovalRequest{}, apperr.NotFound("Approval request")
		}
		return store.ApprovalRequest{}, apperr.Internal("Failed to load approval request", err)
	}
	if existing.Status != store.StatusPending {
		return store.ApprovalRequest{}, apperr.Newf(apperr.CodeAlreadyProcessed,
			"Request was already processed with status %s", existing.Status)
	}
	if !in.Approved && in.RejectionReason == "" {
		return store.ApprovalRequest{}, apperr.Validation("Invalid decision", []apperr.FieldError{
			{Field: "rejectionReason", Message: "required when rejecting"},
		})
	}

	decided, err := m.requests.DecideRequest(ctx, store.DecideParams{
		ID:              in.RequestID,
		DeciderID:       in.DeciderID,
		Approved:        in.Approved,
		Notes:           in.Notes,
		RejectionReason: in.RejectionReason,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyProcessed):
			// Lost the race to another decider between read and write.
			return store.ApprovalRequest{}, apperr.New(apperr.CodeAlreadyProcessed, "Request was already processed")
		case errors.Is(err, store.ErrNotFound):
			return store.ApprovalRequest{}, apperr.NotFound("Approval request")
		default:
			return store.ApprovalRequest{}, apperr.Internal("Failed to record decision", err)
		}
	}

	if m.notifier != nil {
		m.notifier.RequestDecided(ctx, decided)
	}
	return decided, nil
}

// Cancel is restricted to the original requester and to PENDING requests.
func (m *Manager) Cancel(ctx context.Context, requestID, requesterID uuid.UUID) (store.ApprovalRequest, error) {
	existing, err := m.requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ApprovalRequest{}, apperr.NotFound("Approval request")
		}
		return store.ApprovalRequest{}, apperr.Internal("Failed to load approval request", err)
	}
	if existing.RequesterID != requesterID {
		return store.ApprovalRequest{}, apperr.New(apperr.CodeForbidden, "Only the original requester may cancel a request")
	}
	if existing.Status != store.StatusPending {
		return store.ApprovalRequest{}, apperr.Newf(apperr.CodeAlreadyProcessed,
			"Request was already processed with status %s", existing.Status)
	}

	cancelled, err := m.requests.CancelRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyProcessed) {
			return store.ApprovalRequest{}, apperr.New(apperr.CodeAlreadyProcessed, "Request was already processed")
		}
		return store.ApprovalRequest{}, apperr.Internal("Failed to cancel request", err)
	}
	return cancelled, nil
}

// Update adjusts notes, approver scoping or the proposed payload. Allowed
// while PENDING or REJECTED (ahead of a resubmission); never once the
// request reached a terminal state.
func (m *Manager) Update(ctx context.Context, requestID uuid.UUID, u store.RequestUpdate) (store.ApprovalRequest, error) {
	existing, err := m.requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ApprovalRequest{}, apperr.NotFound("Approval request")
		}
		return store.ApprovalRequest{}, apperr.Internal("Failed to load approval request", err)
	}
	if existing.Status != store.StatusPending && existing.Status != store.StatusRejected {
		return store.ApprovalRequest{}, apperr.Newf(apperr.CodeAlreadyProcessed,
			"Request in status %s can no longer be updated", existing.Status)
	}

	if len(u.ApproverRoles) > 0 {
		missing, err := m.validator.ExistsAll(ctx, store.RefRoles, u.ApproverRoles)
		if err != nil {
			return store.ApprovalRequest{}, apperr.Internal("Reference validation failed", err)
		}
		if len(missing) > 0 {
			details := make([]apperr.FieldError, 0, len(missing))
			for _, id := range missing {
				details = append(details, apperr.FieldError{Field: "approverRoles", Message: "unknown id " + id.String()})
			}
			return store.ApprovalRequest{}, apperr.Validation("Invalid approver roles", details)
		}
	}

	updated, err := m.requests.UpdateRequest(ctx, requestID, u)
	if err != nil {
		return store.ApprovalRequest{}, apperr.Internal("Failed to update request", err)
	}
	return updated, nil
}

func (m *Manager) Get(ctx context.Context, requestID uuid.UUID) (store.ApprovalRequest, error) {
	req, err := m.requests.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ApprovalRequest{}, apperr.NotFound("Approval request")
		}
		return store.ApprovalRequest{}, apperr.Internal("Failed to load approval request", err)
	}
	return req, nil
}

func (m *Manager) List(ctx context.Context, f store.RequestFilter) ([]store.ApprovalRequest, int64, error) {
	requests, total, err := m.requests.ListRequests(ctx, f)
	if err != nil {
		return nil, 0, apperr.Internal("Failed to list approval requests", err)
	}
	return requests, total, nil
}

// Statistics aggregates counts by status and type, the average decision
// latency, and how many PENDING requests are older than the staleness
// window.
type Statistics struct {
	Total              int64
	ByStatus           map[store.ApprovalStatus]int64
	ByType             map[store.ApprovalType]int64
	AvgDecisionLatency time.Duration
	Overdue            int64
}

func (m *Manager) Statistics(ctx context.Context) (Statistics, error) {
	stats, err := m.requests.RequestStatistics(ctx, m.overdueAfter)
	if err != nil {
		return Statistics{}, apperr.Internal("Failed to compute statistics", err)
	}
	return Statistics{
		Total:              stats.Total,
		ByStatus:           stats.ByStatus,
		ByType:             stats.ByType,
		AvgDecisionLatency: time.Duration(stats.AvgDecisionSeconds * float64(time.Second)),
		Overdue:            stats.Overdue,
	}, nil
}

func (m *Manager) requireRef(ctx context.Context, kind store.RefKind, id uuid.UUID, resource string) error {
	exists, err := m.validator.Exists(ctx, kind, id)
	if err != nil {
		return apperr.Internal("Reference validation failed", err)
	}
	if !exists {
		logging.Debug("reference check failed", "kind", kind, "id", id)
		return apperr.NotFound(resource)
	}
	return nil
}
