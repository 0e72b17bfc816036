package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/store"
)

// Entity type labels recorded on in-app notification rows.
const (
	EntityApprovalRequest = "approval_request"
	EntityQualityCheck    = "quality_check"
)

type notificationStore interface {
	InsertNotifications(ctx context.Context, actorID uuid.UUID, entityType string, entityID uuid.UUID, notifierIDs []uuid.UUID) error
	ListNotifications(ctx context.Context, notifierID uuid.UUID, limit, offset int64) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, notifierID, id uuid.UUID) error
	CountUnreadNotifications(ctx context.Context, notifierID uuid.UUID) (int64, error)
}

type NotificationService struct {
	store notificationStore
}

func NewNotificationService(s notificationStore) *NotificationService {
	return &NotificationService{store: s}
}

// Publish fans an event out to every notifier except the actor themselves.
func (s *NotificationService) Publish(ctx context.Context, actorID uuid.UUID, entityType string, entityID uuid.UUID, notifierIDs []uuid.UUID) error {
	recipients := make([]uuid.UUID, 0, len(notifierIDs))
	seen := make(map[uuid.UUID]struct{}, len(notifierIDs))
	for _, id := range notifierIDs {
		if id == actorID || id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	if len(recipients) == 0 {
		return nil
	}

	if err := s.store.InsertNotifications(ctx, actorID, entityType, entityID, recipients); err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}
	return nil
}

func (s *NotificationService) GetUserNotifications(ctx context.Context, userID uuid.UUID, limit, offset int64) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.store.MarkNotificationRead(ctx, userID, notificationID)
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}
