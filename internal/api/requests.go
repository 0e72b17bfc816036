package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/approvals"
	"github.com/plantops/mv-backend/internal/auth"
	"github.com/plantops/mv-backend/internal/store"
)

type createRequestPayload struct {
	MachineID       uuid.UUID      `json:"machineId"`
	ApprovalType    string         `json:"approvalType"`
	ProposedChanges map[string]any `json:"proposedChanges"`
	OriginalData    map[string]any `json:"originalData"`
	Notes           string         `json:"notes"`
	ApproverRoles   []uuid.UUID    `json:"approverRoles"`
}

type decisionPayload struct {
	Approved        bool   `json:"approved"`
	Notes           string `json:"notes"`
	RejectionReason string `json:"rejectionReason"`
}

type updateRequestPayload struct {
	Notes           *string        `json:"notes"`
	ApproverRoles   []uuid.UUID    `json:"approverRoles"`
	ProposedChanges map[string]any `json:"proposedChanges"`
}

type requestResponse struct {
	ID              uuid.UUID      `json:"id"`
	MachineID       uuid.UUID      `json:"machineId"`
	RequesterID     uuid.UUID      `json:"requesterId"`
	ApprovalType    string         `json:"approvalType"`
	ProposedChanges map[string]any `json:"proposedChanges,omitempty"`
	OriginalData    map[string]any `json:"originalData,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	ApproverRoles   []uuid.UUID    `json:"approverRoles"`
	Status          string         `json:"status"`
	DecidedBy       *uuid.UUID     `json:"decidedBy,omitempty"`
	DecidedAt       *time.Time     `json:"decidedAt,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func toRequestResponse(r store.ApprovalRequest) requestResponse {
	return requestResponse{
		ID:              r.ID,
		MachineID:       r.MachineID,
		RequesterID:     r.RequesterID,
		ApprovalType:    string(r.ApprovalType),
		ProposedChanges: r.ProposedChanges,
		OriginalData:    r.OriginalData,
		Notes:           r.Notes,
		ApproverRoles:   r.ApproverRoles,
		Status:          string(r.Status),
		DecidedBy:       r.DecidedBy,
		DecidedAt:       r.DecidedAt,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (s *Server) CreateRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	var payload createRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request body", nil))
		return
	}

	created, err := s.requests.Create(r.Context(), approvals.CreateInput{
		MachineID:       payload.MachineID,
		RequesterID:     user.ID,
		ApprovalType:    store.ApprovalType(payload.ApprovalType),
		ProposedChanges: payload.ProposedChanges,
		OriginalData:    payload.OriginalData,
		Notes:           payload.Notes,
		ApproverRoles:   payload.ApproverRoles,
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (s *Server) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request id", nil))
		return
	}

	req, err := s.requests.Get(r.Context(), requestID)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (s *Server) DecideRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request id", nil))
		return
	}

	var payload decisionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request body", nil))
		return
	}

	decided, err := s.requests.Decide(r.Context(), approvals.DecideInput{
		RequestID:       requestID,
		DeciderID:       user.ID,
		Approved:        payload.Approved,
		Notes:           payload.Notes,
		RejectionReason: payload.RejectionReason,
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(decided))
}

func (s *Server) CancelRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request id", nil))
		return
	}

	cancelled, err := s.requests.Cancel(r.Context(), requestID, user.ID)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(cancelled))
}

func (s *Server) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request id", nil))
		return
	}

	var payload updateRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request body", nil))
		return
	}

	updated, err := s.requests.Update(r.Context(), requestID, store.RequestUpdate{
		Notes:           payload.Notes,
		ApproverRoles:   payload.ApproverRoles,
		ProposedChanges: payload.ProposedChanges,
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

func (s *Server) ListRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	filter := store.RequestFilter{Limit: limit, Offset: offset}

	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		status := store.ApprovalStatus(raw)
		if !store.ValidApprovalStatus(status) {
			writeError(w, http.StatusBadRequest, ValidationErr("Unknown status", nil))
			return
		}
		filter.Status = &status
	}
	if raw := q.Get("approvalType"); raw != "" {
		approvalType := store.ApprovalType(raw)
		if !store.ValidApprovalType(approvalType) {
			writeError(w, http.StatusBadRequest, ValidationErr("Unknown approval type", nil))
			return
		}
		filter.ApprovalType = &approvalType
	}
	if raw := q.Get("requesterId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ValidationErr("Invalid requesterId", nil))
			return
		}
		filter.RequesterID = &id
	}
	if raw := q.Get("machineId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ValidationErr("Invalid machineId", nil))
			return
		}
		filter.MachineID = &id
	}
	if raw := q.Get("categoryId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ValidationErr("Invalid categoryId", nil))
			return
		}
		filter.CategoryID = &id
	}
	if raw := q.Get("createdFrom"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ValidationErr("Invalid createdFrom, expected RFC 3339", nil))
			return
		}
		filter.CreatedFrom = &from
	}
	if raw := q.Get("createdTo"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ValidationErr("Invalid createdTo, expected RFC 3339", nil))
			return
		}
		filter.CreatedTo = &to
	}
	filter.Search = q.Get("search")
	filter.MetaKey = q.Get("metaKey")
	filter.MetaValue = q.Get("metaValue")
	filter.SortBy = q.Get("sortBy")
	filter.SortAsc = q.Get("sortOrder") == "asc"

	requests, total, err := s.requests.List(r.Context(), filter)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}

	items := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		items = append(items, toRequestResponse(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": items,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) RequestStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.requests.Statistics(r.Context())
	if err != nil {
		writeAppErr(w, r, err)
		return
	}

	byStatus := make(map[string]int64, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	byType := make(map[string]int64, len(stats.ByType))
	for approvalType, count := range stats.ByType {
		byType[string(approvalType)] = count
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":                     stats.Total,
		"byStatus":                  byStatus,
		"byType":                    byType,
		"avgDecisionLatencySeconds": stats.AvgDecisionLatency.Seconds(),
		"overdue":                   stats.Overdue,
	})
}
