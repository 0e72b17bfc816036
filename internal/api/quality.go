package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/auth"
	"github.com/plantops/mv-backend/internal/store"
)

type checkApprovalPayload struct {
	ApprovalStatus string `json:"approvalStatus"`
	IsActive       *bool  `json:"isActive"`
}

type checkInspectionPayload struct {
	QualityScore       *float64   `json:"qualityScore"`
	InspectionDate     *time.Time `json:"inspectionDate"`
	NextInspectionDate *time.Time `json:"nextInspectionDate"`
}

type checkResponse struct {
	ID                 uuid.UUID  `json:"id"`
	MachineID          uuid.UUID  `json:"machineId"`
	InspectorID        uuid.UUID  `json:"inspectorId"`
	ApprovalStatus     string     `json:"approvalStatus"`
	QualityScore       *float64   `json:"qualityScore,omitempty"`
	InspectionDate     *time.Time `json:"inspectionDate,omitempty"`
	NextInspectionDate *time.Time `json:"nextInspectionDate,omitempty"`
	IsActive           bool       `json:"isActive"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func toCheckResponse(c store.QualityCheck) checkResponse {
	return checkResponse{
		ID:                 c.ID,
		MachineID:          c.MachineID,
		InspectorID:        c.InspectorID,
		ApprovalStatus:     string(c.ApprovalStatus),
		QualityScore:       c.QualityScore,
		InspectionDate:     c.InspectionDate,
		NextInspectionDate: c.NextInspectionDate,
		IsActive:           c.IsActive,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

// checkEnvelope carries the check plus any ledger-sync warnings. A 200
// with warnings means the check update committed but the ledger needs
// attention.
func checkEnvelope(c store.QualityCheck, warnings []string) map[string]any {
	body := map[string]any{"qualityCheck": toCheckResponse(c)}
	if len(warnings) > 0 {
		body["warnings"] = warnings
	}
	return body
}

func (s *Server) GetQualityCheck(w http.ResponseWriter, r *http.Request) {
	checkID, err := uuid.Parse(chi.URLParam(r, "checkID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid quality check id", nil))
		return
	}

	check, err := s.quality.Get(r.Context(), checkID)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkEnvelope(check, nil))
}

func (s *Server) UpdateCheckApproval(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	checkID, err := uuid.Parse(chi.URLParam(r, "checkID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid quality check id", nil))
		return
	}

	var payload checkApprovalPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request body", nil))
		return
	}

	check, warnings, err := s.quality.UpdateApproval(r.Context(), checkID, user.ID,
		store.CheckApprovalStatus(payload.ApprovalStatus), payload.IsActive)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkEnvelope(check, warnings))
}

func (s *Server) UpdateCheckInspection(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	checkID, err := uuid.Parse(chi.URLParam(r, "checkID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid quality check id", nil))
		return
	}

	var payload checkInspectionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request body", nil))
		return
	}

	check, warnings, err := s.quality.EditInspection(r.Context(), checkID, user.ID, store.CheckInspectionUpdate{
		QualityScore:       payload.QualityScore,
		InspectionDate:     payload.InspectionDate,
		NextInspectionDate: payload.NextInspectionDate,
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkEnvelope(check, warnings))
}
