package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/auth"
	"github.com/plantops/mv-backend/internal/store"
)

type notificationResponse struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    uuid.UUID  `json:"actorId"`
	EntityType string     `json:"entityType"`
	EntityID   uuid.UUID  `json:"entityId"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toNotificationResponse(n store.Notification) notificationResponse {
	return notificationResponse{
		ID:         n.ID,
		ActorID:    n.ActorID,
		EntityType: n.EntityType,
		EntityID:   n.EntityID,
		ReadAt:     n.ReadAt,
		CreatedAt:  n.CreatedAt,
	}
}

func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	limit, offset := parsePagination(r)
	notifications, err := s.notifier.GetUserNotifications(r.Context(), user.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, InternalError("Failed to load notifications"))
		return
	}

	items := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": items,
		"limit":         limit,
		"offset":        offset,
	})
}

func (s *Server) UnreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	count, err := s.notifier.GetUnreadCount(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, InternalError("Failed to count notifications"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": count})
}

func (s *Server) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	notificationID, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid notification id", nil))
		return
	}

	if err := s.notifier.MarkAsRead(r.Context(), user.ID, notificationID); err != nil {
		writeError(w, http.StatusNotFound, NotFound("Notification"))
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
