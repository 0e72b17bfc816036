package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/logging"
	"github.com/plantops/mv-backend/internal/store"
)

// Template names for approval lifecycle emails.
const (
	TemplateRequestCreated = "request_created_approver"
	TemplateRequestDecided = "request_decided_requester"
)

type approverResolver interface {
	UsersByRoles(ctx context.Context, roleIDs []uuid.UUID) ([]store.User, error)
	GetMachine(ctx context.Context, id uuid.UUID) (store.Machine, error)
}

// ApprovalNotifier translates approval request events into dispatcher
// calls. It satisfies the approvals package's Notifier contract: every
// failure is logged and swallowed so notification trouble never fails
// the request operation itself.
type ApprovalNotifier struct {
	dispatcher *NotificationDispatcher
	resolver   approverResolver
}

func NewApprovalNotifier(dispatcher *NotificationDispatcher, resolver approverResolver) *ApprovalNotifier {
	return &ApprovalNotifier{dispatcher: dispatcher, resolver: resolver}
}

// RequestCreated notifies every user holding one of the request's approver
// roles that a new request awaits their decision.
func (n *ApprovalNotifier) RequestCreated(ctx context.Context, req store.ApprovalRequest) {
	approvers, err := n.resolver.UsersByRoles(ctx, req.ApproverRoles)
	if err != nil {
		logging.Error("failed to resolve approvers for request", "request_id", req.ID, "error", err)
		return
	}
	if len(approvers) == 0 {
		logging.Warn("no approvers resolved for request", "request_id", req.ID)
		return
	}

	ids := make([]uuid.UUID, 0, len(approvers))
	for _, u := range approvers {
		ids = append(ids, u.ID)
	}

	err = n.dispatcher.Notify(ctx, req.RequesterID, EntityApprovalRequest, req.ID, []NotifierGroup{
		{
			IDs:      ids,
			Template: TemplateRequestCreated,
			TemplateData: map[string]interface{}{
				"MachineName":  n.machineName(ctx, req.MachineID),
				"ApprovalType": string(req.ApprovalType),
				"Notes":        req.Notes,
			},
		},
	})
	if err != nil {
		logging.Error("failed to notify approvers", "request_id", req.ID, "error", err)
	}
}

// RequestDecided tells the requester how their request was resolved.
func (n *ApprovalNotifier) RequestDecided(ctx context.Context, req store.ApprovalRequest) {
	actorID := uuid.Nil
	if req.DecidedBy != nil {
		actorID = *req.DecidedBy
	}

	err := n.dispatcher.Notify(ctx, actorID, EntityApprovalRequest, req.ID, []NotifierGroup{
		{
			IDs:      []uuid.UUID{req.RequesterID},
			Template: TemplateRequestDecided,
			TemplateData: map[string]interface{}{
				"MachineName":     n.machineName(ctx, req.MachineID),
				"ApprovalType":    string(req.ApprovalType),
				"Status":          string(req.Status),
				"RejectionReason": req.RejectionReason,
			},
		},
	})
	if err != nil {
		logging.Error("failed to notify requester of decision", "request_id", req.ID, "error", err)
	}
}

func (n *ApprovalNotifier) machineName(ctx context.Context, machineID uuid.UUID) string {
	machine, err := n.resolver.GetMachine(ctx, machineID)
	if err != nil {
		logging.Debug("failed to resolve machine for notification", "machine_id", machineID, "error", err)
		return machineID.String()
	}
	return machine.Name
}
