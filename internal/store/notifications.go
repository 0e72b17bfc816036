package store

import (
	"context"

	"github.com/google/uuid"
)

func (s *Store) InsertNotifications(ctx context.Context, actorID uuid.UUID, entityType string, entityID uuid.UUID, notifierIDs []uuid.UUID) error {
	if len(notifierIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (notifier_id, actor_id, entity_type, entity_id)
		SELECT notifier, $1, $2, $3 FROM unnest($4::uuid[]) AS notifier`,
		actorID, entityType, entityID, notifierIDs)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, notifierID uuid.UUID, limit, offset int64) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, notifier_id, actor_id, entity_type, entity_id, read_at, created_at
		FROM notifications WHERE notifier_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, notifierID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.NotifierID, &n.ActorID, &n.EntityType, &n.EntityID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, notifierID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = now()
		WHERE id = $1 AND notifier_id = $2 AND read_at IS NULL`, id, notifierID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, notifierID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE notifier_id = $1 AND read_at IS NULL`, notifierID).Scan(&count)
	return count, err
}
