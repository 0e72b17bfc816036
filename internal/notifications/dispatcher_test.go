package notifications_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/plantops/mv-backend/internal/notifications"
	"github.com/plantops/mv-backend/internal/queue"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	tasks []queue.EmailDeliveryPayload
}

func (q *recordingQueue) Enqueue(taskType string, data interface{}) (*asynq.TaskInfo, error) {
	if taskType == queue.TypeEmailDelivery {
		q.tasks = append(q.tasks, data.(queue.EmailDeliveryPayload))
	}
	return &asynq.TaskInfo{}, nil
}

func newDispatcher(t *testing.T, q *recordingQueue, emails map[uuid.UUID]string) (*notifications.NotificationDispatcher, *recordingNotificationStore) {
	t.Helper()

	templates, err := notifications.LoadTemplates("../../templates/email")
	require.NoError(t, err)

	recorder := &recordingNotificationStore{}
	svc := notifications.NewNotificationService(recorder)
	lookup := func(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
		resolved := make(map[uuid.UUID]string)
		for _, id := range ids {
			if email, ok := emails[id]; ok {
				resolved[id] = email
			}
		}
		return resolved, nil
	}
	return notifications.NewNotificationDispatcher(svc, q, templates, lookup), recorder
}

func TestNotify_PublishesAndEnqueuesEmails(t *testing.T) {
	q := &recordingQueue{}
	approver := uuid.New()
	dispatcher, recorder := newDispatcher(t, q, map[uuid.UUID]string{approver: "approver@example.com"})

	actor := uuid.New()
	entity := uuid.New()
	err := dispatcher.Notify(context.Background(), actor, notifications.EntityApprovalRequest, entity,
		[]notifications.NotifierGroup{{
			IDs:      []uuid.UUID{approver},
			Template: notifications.TemplateRequestCreated,
			TemplateData: map[string]interface{}{
				"MachineName":  "Hydraulic press",
				"ApprovalType": "ACTIVATION",
				"Notes":        "urgent",
			},
		}})
	require.NoError(t, err)

	require.Len(t, recorder.inserts, 1)
	assert.Equal(t, []uuid.UUID{approver}, recorder.inserts[0].notifiers)

	require.Len(t, q.tasks, 1)
	task := q.tasks[0]
	assert.Equal(t, "approver@example.com", task.To)
	assert.Contains(t, task.Subject, "Hydraulic press")
	assert.Contains(t, task.Subject, "ACTIVATION")
	assert.Contains(t, task.Body, "urgent")
	assert.True(t, strings.Contains(task.Body, "<html>"))
}

func TestNotify_TemplatelessGroupSkipsEmail(t *testing.T) {
	q := &recordingQueue{}
	recipient := uuid.New()
	dispatcher, recorder := newDispatcher(t, q, map[uuid.UUID]string{recipient: "user@example.com"})

	err := dispatcher.Notify(context.Background(), uuid.New(), notifications.EntityQualityCheck, uuid.New(),
		[]notifications.NotifierGroup{{IDs: []uuid.UUID{recipient}}})
	require.NoError(t, err)

	assert.Len(t, recorder.inserts, 1)
	assert.Empty(t, q.tasks)
}

func TestNotify_EmptyGroupsIsNoop(t *testing.T) {
	q := &recordingQueue{}
	dispatcher, recorder := newDispatcher(t, q, nil)

	err := dispatcher.Notify(context.Background(), uuid.New(), notifications.EntityApprovalRequest, uuid.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, recorder.inserts)
	assert.Empty(t, q.tasks)
}

func TestApprovalNotifier_RequestDecided(t *testing.T) {
	q := &recordingQueue{}
	requester := uuid.New()
	dispatcher, recorder := newDispatcher(t, q, map[uuid.UUID]string{requester: "requester@example.com"})

	machine := store.Machine{ID: uuid.New(), Name: "CNC lathe"}
	notifier := notifications.NewApprovalNotifier(dispatcher, &staticResolver{machine: machine})

	decider := uuid.New()
	notifier.RequestDecided(context.Background(), store.ApprovalRequest{
		ID:           uuid.New(),
		MachineID:    machine.ID,
		RequesterID:  requester,
		ApprovalType: store.ApprovalTypeActivation,
		Status:       store.StatusApproved,
		DecidedBy:    &decider,
	})

	require.Len(t, recorder.inserts, 1)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, "requester@example.com", q.tasks[0].To)
	assert.Contains(t, q.tasks[0].Subject, "CNC lathe")
	assert.Contains(t, q.tasks[0].Subject, "APPROVED")
}

type staticResolver struct {
	machine store.Machine
	users   []store.User
}

func (r *staticResolver) UsersByRoles(_ context.Context, _ []uuid.UUID) ([]store.User, error) {
	return r.users, nil
}

func (r *staticResolver) GetMachine(_ context.Context, id uuid.UUID) (store.Machine, error) {
	if id == r.machine.ID {
		return r.machine, nil
	}
	return store.Machine{}, store.ErrNotFound
}
