package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/auth"
	"github.com/plantops/mv-backend/internal/policy"
	"github.com/plantops/mv-backend/internal/store"
)

type evaluateRequest struct {
	Action       string     `json:"action"`
	CategoryID   *uuid.UUID `json:"categoryId"`
	NumericValue *float64   `json:"numericValue"`
}

type decisionResponse struct {
	Action           string        `json:"action"`
	Allowed          bool          `json:"allowed"`
	RequiresApproval bool          `json:"requiresApproval"`
	ApproverRoles    []uuid.UUID   `json:"approverRoles,omitempty"`
	MatchedRule      *ruleResponse `json:"matchedRule,omitempty"`
	Reason           string        `json:"reason,omitempty"`
}

func toDecisionResponse(d policy.Decision) decisionResponse {
	resp := decisionResponse{
		Action:           string(d.Action),
		Allowed:          d.Allowed,
		RequiresApproval: d.RequiresApproval,
		ApproverRoles:    d.ApproverRoles,
		Reason:           d.Reason,
	}
	if d.MatchedRule != nil {
		rule := toRuleResponse(*d.MatchedRule)
		resp.MatchedRule = &rule
	}
	return resp
}

func actorFromContext(r *http.Request) (policy.Actor, bool) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		return policy.Actor{}, false
	}
	return policy.Actor{
		UserID:       user.ID,
		RoleID:       user.RoleID,
		DepartmentID: user.DepartmentID,
	}, true
}

// EvaluatePermission resolves the caller's decision for a single action
// against an optional resource context.
func (s *Server) EvaluatePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	var payload evaluateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request body", nil))
		return
	}

	action := store.ActionType(payload.Action)
	if !store.ValidActionType(action) {
		writeError(w, http.StatusBadRequest, ValidationErr("Unknown action type", []ErrorDetail{
			{Field: "action", Message: "unknown action type"},
		}))
		return
	}

	decision, err := s.evaluator.Evaluate(r.Context(), actor, action, policy.ResourceContext{
		CategoryID:   payload.CategoryID,
		NumericValue: payload.NumericValue,
	})
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionResponse(decision))
}

// AllPermissions evaluates every known action for the caller, for UI
// feature gating. Optional categoryId/numericValue query params scope the
// resource context.
func (s *Server) AllPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	var rctx policy.ResourceContext
	q := r.URL.Query()
	if raw := q.Get("categoryId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ValidationErr("Invalid categoryId", nil))
			return
		}
		rctx.CategoryID = &id
	}
	if raw := q.Get("numericValue"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, ValidationErr("Invalid numericValue", nil))
			return
		}
		rctx.NumericValue = &value
	}

	decisions := s.evaluator.AllPermissions(r.Context(), actor, rctx)
	permissions := make(map[string]decisionResponse, len(decisions))
	for action, decision := range decisions {
		permissions[string(action)] = toDecisionResponse(decision)
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": permissions})
}
