package approvals_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/apperr"
	"github.com/plantops/mv-backend/internal/approvals"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/plantops/mv-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	manager   *approvals.Manager
	requests  *testutil.FakeRequestStore
	notifier  *testutil.RecordingNotifier
	machine   *store.Machine
	requester uuid.UUID
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	requests := testutil.NewFakeRequestStore()
	notifier := testutil.NewRecordingNotifier()

	machine := &store.Machine{ID: uuid.New(), Name: "CNC mill"}
	requests.Machines[machine.ID] = machine

	requester := uuid.New()
	validator := testutil.NewFakeValidator()
	validator.Register(store.RefMachines, machine.ID)
	validator.Register(store.RefUsers, requester)

	return &managerFixture{
		manager:   approvals.NewManager(requests, validator, notifier, 7*24*time.Hour),
		requests:  requests,
		notifier:  notifier,
		machine:   machine,
		requester: requester,
	}
}

func (f *managerFixture) createInput() approvals.CreateInput {
	return approvals.CreateInput{
		MachineID:    f.machine.ID,
		RequesterID:  f.requester,
		ApprovalType: store.ApprovalTypeActivation,
	}
}

func TestCreate_HappyPath(t *testing.T) {
	f := newManagerFixture(t)

	created, err := f.manager.Create(context.Background(), f.createInput())
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, created.Status)
	assert.NotEqual(t, uuid.Nil, created.ID)
	require.Len(t, f.notifier.Created, 1)
	assert.Equal(t, created.ID, f.notifier.Created[0].ID)
}

func TestCreate_SecondPendingRejected(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)

	_, err = f.manager.Create(ctx, f.createInput())
	require.Error(t, err)
	assert.Equal(t, apperr.CodePendingExists, apperr.CodeOf(err))

	// A different approval type for the same machine is not blocked.
	in := f.createInput()
	in.ApprovalType = store.ApprovalTypeEdit
	_, err = f.manager.Create(ctx, in)
	assert.NoError(t, err)
}

func TestCreate_AllowedAgainOnceResolved(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	// Only a PENDING request blocks; any resolved state frees the slot.
	first, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)
	_, err = f.manager.Create(ctx, f.createInput())
	require.Error(t, err)
	require.Equal(t, apperr.CodePendingExists, apperr.CodeOf(err))

	_, err = f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: first.ID, DeciderID: uuid.New(),
		Approved: false, RejectionReason: "resubmit with documentation",
	})
	require.NoError(t, err)

	second, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err, "a rejected request must not block a new one")
	assert.Equal(t, store.StatusPending, second.Status)

	cancelled, err := f.manager.Cancel(ctx, second.ID, f.requester)
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, cancelled.Status)

	third, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err, "a cancelled request must not block a new one")
	assert.Equal(t, store.StatusPending, third.Status)
}

func TestCreate_UnknownMachineIsNotFound(t *testing.T) {
	f := newManagerFixture(t)

	in := f.createInput()
	in.MachineID = uuid.New()
	_, err := f.manager.Create(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCreate_UnknownApprovalType(t *testing.T) {
	f := newManagerFixture(t)

	in := f.createInput()
	in.ApprovalType = store.ApprovalType("GUESSWORK")
	_, err := f.manager.Create(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestDecide_ApproveFlipsMachineFlag(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)
	require.False(t, f.machine.IsApproved)

	decider := uuid.New()
	decided, err := f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: created.ID,
		DeciderID: decider,
		Approved:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, store.StatusApproved, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, decider, *decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)
	assert.True(t, f.machine.IsApproved, "approval must flip the machine flag")
	require.Len(t, f.notifier.Decided, 1)
}

func TestDecide_RejectRequiresReason(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)

	_, err = f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: created.ID,
		DeciderID: uuid.New(),
		Approved:  false,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	decided, err := f.manager.Decide(ctx, approvals.DecideInput{
		RequestID:       created.ID,
		DeciderID:       uuid.New(),
		Approved:        false,
		RejectionReason: "missing safety certificate",
	})
	require.NoError(t, err)
	assert.Equal(t, store.StatusRejected, decided.Status)
	assert.Equal(t, "missing safety certificate", decided.RejectionReason)
	assert.False(t, f.machine.IsApproved, "rejection must not touch the machine flag")
}

func TestDecide_SecondDecisionAlreadyProcessed(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)

	_, err = f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: created.ID, DeciderID: uuid.New(), Approved: true,
	})
	require.NoError(t, err)

	_, err = f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: created.ID, DeciderID: uuid.New(), Approved: true,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))
	assert.Len(t, f.notifier.Decided, 1, "a repeated decision must not re-notify")
}

func TestDecide_UnknownRequest(t *testing.T) {
	f := newManagerFixture(t)

	_, err := f.manager.Decide(context.Background(), approvals.DecideInput{
		RequestID: uuid.New(), DeciderID: uuid.New(), Approved: true,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCancel_OnlyRequesterWhilePending(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)

	_, err = f.manager.Cancel(ctx, created.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	cancelled, err := f.manager.Cancel(ctx, created.ID, f.requester)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, cancelled.Status)

	_, err = f.manager.Cancel(ctx, created.ID, f.requester)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))
}

func TestUpdate_OnlyPendingOrRejected(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)

	notes := "updated notes"
	updated, err := f.manager.Update(ctx, created.ID, store.RequestUpdate{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)

	// Rejected requests stay editable ahead of a resubmission.
	_, err = f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: created.ID, DeciderID: uuid.New(),
		Approved: false, RejectionReason: "incomplete",
	})
	require.NoError(t, err)
	_, err = f.manager.Update(ctx, created.ID, store.RequestUpdate{Notes: &notes})
	assert.NoError(t, err)

	// Approved requests are frozen.
	in := f.createInput()
	second, err := f.manager.Create(ctx, in)
	require.NoError(t, err)
	_, err = f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: second.ID, DeciderID: uuid.New(), Approved: true,
	})
	require.NoError(t, err)
	_, err = f.manager.Update(ctx, second.ID, store.RequestUpdate{Notes: &notes})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))
}

func TestStatistics(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)
	_, err = f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: created.ID, DeciderID: uuid.New(), Approved: true,
	})
	require.NoError(t, err)

	in := f.createInput()
	in.ApprovalType = store.ApprovalTypeEdit
	_, err = f.manager.Create(ctx, in)
	require.NoError(t, err)

	stats, err := f.manager.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus[store.StatusApproved])
	assert.Equal(t, int64(1), stats.ByStatus[store.StatusPending])
	assert.Equal(t, int64(1), stats.ByType[store.ApprovalTypeActivation])
	assert.Equal(t, int64(1), stats.ByType[store.ApprovalTypeEdit])
	assert.Equal(t, int64(0), stats.Overdue)
	assert.Greater(t, stats.AvgDecisionLatency, time.Duration(0))
}

func TestList_FilterByStatus(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, f.createInput())
	require.NoError(t, err)

	in := f.createInput()
	in.ApprovalType = store.ApprovalTypeEdit
	_, err = f.manager.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.manager.Decide(ctx, approvals.DecideInput{
		RequestID: created.ID, DeciderID: uuid.New(), Approved: true,
	})
	require.NoError(t, err)

	pending := store.StatusPending
	requests, total, err := f.manager.List(ctx, store.RequestFilter{Status: &pending, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, requests, 1)
	assert.Equal(t, store.ApprovalTypeEdit, requests[0].ApprovalType)
}
