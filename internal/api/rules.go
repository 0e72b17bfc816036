package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/auth"
	"github.com/plantops/mv-backend/internal/policy"
	"github.com/plantops/mv-backend/internal/store"
)

type ruleRequest struct {
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Action        string      `json:"action"`
	UserIDs       []uuid.UUID `json:"userIds"`
	RoleIDs       []uuid.UUID `json:"roleIds"`
	DepartmentIDs []uuid.UUID `json:"departmentIds"`
	CategoryIDs   []uuid.UUID `json:"categoryIds"`
	Permission    string      `json:"permission"`
	ApproverRoles []uuid.UUID `json:"approverRoles"`
	MaxValue      *float64    `json:"maxValue"`
	Priority      int32       `json:"priority"`
}

type ruleResponse struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	Action        string      `json:"action"`
	UserIDs       []uuid.UUID `json:"userIds"`
	RoleIDs       []uuid.UUID `json:"roleIds"`
	DepartmentIDs []uuid.UUID `json:"departmentIds"`
	CategoryIDs   []uuid.UUID `json:"categoryIds"`
	Permission    string      `json:"permission"`
	ApproverRoles []uuid.UUID `json:"approverRoles"`
	MaxValue      *float64    `json:"maxValue,omitempty"`
	Priority      int32       `json:"priority"`
	IsActive      bool        `json:"isActive"`
	CreatedBy     uuid.UUID   `json:"createdBy"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func toRuleResponse(r store.PermissionRule) ruleResponse {
	return ruleResponse{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Action:        string(r.Action),
		UserIDs:       r.UserIDs,
		RoleIDs:       r.RoleIDs,
		DepartmentIDs: r.DepartmentIDs,
		CategoryIDs:   r.CategoryIDs,
		Permission:    string(r.Permission),
		ApproverRoles: r.ApproverRoles,
		MaxValue:      r.MaxValue,
		Priority:      r.Priority,
		IsActive:      r.IsActive,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (in ruleRequest) toInput() policy.RuleInput {
	return policy.RuleInput{
		Name:          in.Name,
		Description:   in.Description,
		Action:        store.ActionType(in.Action),
		UserIDs:       in.UserIDs,
		RoleIDs:       in.RoleIDs,
		DepartmentIDs: in.DepartmentIDs,
		CategoryIDs:   in.CategoryIDs,
		Permission:    store.Permission(in.Permission),
		ApproverRoles: in.ApproverRoles,
		MaxValue:      in.MaxValue,
		Priority:      in.Priority,
	}
}

func (s *Server) CreateRule(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	var payload ruleRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request body", nil))
		return
	}

	created, err := s.rules.CreateRule(r.Context(), payload.toInput(), user.ID)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(created))
}

func (s *Server) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid rule id", nil))
		return
	}

	var payload ruleRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid request body", nil))
		return
	}

	updated, err := s.rules.UpdateRule(r.Context(), ruleID, payload.toInput())
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(updated))
}

func (s *Server) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid rule id", nil))
		return
	}

	if err := s.rules.DeleteRule(r.Context(), ruleID); err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid rule id", nil))
		return
	}

	rule, err := s.rules.GetRule(r.Context(), ruleID)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) ListRules(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	filter := store.RuleFilter{Limit: limit, Offset: offset}

	q := r.URL.Query()
	if raw := q.Get("action"); raw != "" {
		action := store.ActionType(raw)
		if !store.ValidActionType(action) {
			writeError(w, http.StatusBadRequest, ValidationErr("Unknown action type", nil))
			return
		}
		filter.Action = &action
	}
	if raw := q.Get("permission"); raw != "" {
		permission := store.Permission(raw)
		if !store.ValidPermission(permission) {
			writeError(w, http.StatusBadRequest, ValidationErr("Unknown permission", nil))
			return
		}
		filter.Permission = &permission
	}
	if raw := q.Get("isActive"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	rules, total, err := s.rules.ListRules(r.Context(), filter)
	if err != nil {
		writeAppErr(w, r, err)
		return
	}

	items := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, toRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
