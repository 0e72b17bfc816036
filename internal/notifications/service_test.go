package notifications_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/notifications"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type insertCall struct {
	actorID    uuid.UUID
	entityType string
	entityID   uuid.UUID
	notifiers  []uuid.UUID
}

type recordingNotificationStore struct {
	inserts []insertCall
	read    []uuid.UUID
}

func (r *recordingNotificationStore) InsertNotifications(_ context.Context, actorID uuid.UUID, entityType string, entityID uuid.UUID, notifierIDs []uuid.UUID) error {
	r.inserts = append(r.inserts, insertCall{actorID, entityType, entityID, notifierIDs})
	return nil
}

func (r *recordingNotificationStore) ListNotifications(_ context.Context, _ uuid.UUID, _, _ int64) ([]store.Notification, error) {
	return nil, nil
}

func (r *recordingNotificationStore) MarkNotificationRead(_ context.Context, _, id uuid.UUID) error {
	r.read = append(r.read, id)
	return nil
}

func (r *recordingNotificationStore) CountUnreadNotifications(_ context.Context, _ uuid.UUID) (int64, error) {
	return int64(len(r.inserts)), nil
}

func TestPublish_SkipsActorAndDuplicates(t *testing.T) {
	recorder := &recordingNotificationStore{}
	svc := notifications.NewNotificationService(recorder)

	actor := uuid.New()
	other := uuid.New()
	entity := uuid.New()

	err := svc.Publish(context.Background(), actor, notifications.EntityApprovalRequest, entity,
		[]uuid.UUID{actor, other, other, uuid.Nil})
	require.NoError(t, err)

	require.Len(t, recorder.inserts, 1)
	call := recorder.inserts[0]
	assert.Equal(t, notifications.EntityApprovalRequest, call.entityType)
	assert.Equal(t, entity, call.entityID)
	assert.Equal(t, []uuid.UUID{other}, call.notifiers)
}

func TestPublish_NoRecipientsIsNoop(t *testing.T) {
	recorder := &recordingNotificationStore{}
	svc := notifications.NewNotificationService(recorder)

	actor := uuid.New()
	err := svc.Publish(context.Background(), actor, notifications.EntityQualityCheck, uuid.New(),
		[]uuid.UUID{actor})
	require.NoError(t, err)
	assert.Empty(t, recorder.inserts)
}
