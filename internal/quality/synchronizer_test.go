package quality_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/plantops/mv-backend/internal/quality"
	"github.com/plantops/mv-backend/internal/store"
	"github.com/plantops/mv-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncFromCheck_MirrorsStatusToAllRows(t *testing.T) {
	ctx := context.Background()
	ledger := testutil.NewFakeLedgerStore()
	machineID := uuid.New()
	check := testutil.NewCheck(machineID).WithStatus(store.CheckApproved).WithScore(92.5).Build()

	first := ledger.Add(testutil.NewLedgerRow(check.ID, machineID).Build())
	second := ledger.Add(testutil.NewLedgerRow(check.ID, machineID).Build())
	// A row for another check must stay untouched.
	other := ledger.Add(testutil.NewLedgerRow(uuid.New(), machineID).Build())

	sync := quality.NewSynchronizer(ledger)
	actor := uuid.New()
	require.NoError(t, sync.SyncFromCheck(ctx, check, actor))

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		row, ok := ledger.Get(id)
		require.True(t, ok)
		assert.Equal(t, store.StatusApproved, row.Status)
		require.NotNil(t, row.QualityScore)
		assert.Equal(t, 92.5, *row.QualityScore)
		require.NotNil(t, row.DecidedBy)
		assert.Equal(t, actor, *row.DecidedBy)
		assert.NotNil(t, row.DecidedAt)
	}

	row, ok := ledger.Get(other.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusPending, row.Status)
}

func TestSyncFromCheck_ApprovedActivatesMachine(t *testing.T) {
	ctx := context.Background()
	ledger := testutil.NewFakeLedgerStore()
	machineID := uuid.New()
	check := testutil.NewCheck(machineID).WithStatus(store.CheckApproved).Active().Build()
	row := ledger.Add(testutil.NewLedgerRow(check.ID, machineID).Build())

	sync := quality.NewSynchronizer(ledger)
	require.NoError(t, sync.SyncFromCheck(ctx, check, uuid.New()))

	got, ok := ledger.Get(row.ID)
	require.True(t, ok)
	assert.True(t, got.MachineActivated)
	assert.NotNil(t, got.ActivationDate)
}

func TestSyncFromCheck_ApprovedInactiveCheckDoesNotActivate(t *testing.T) {
	ctx := context.Background()
	ledger := testutil.NewFakeLedgerStore()
	machineID := uuid.New()
	check := testutil.NewCheck(machineID).WithStatus(store.CheckApproved).Build()
	row := ledger.Add(testutil.NewLedgerRow(check.ID, machineID).Build())

	sync := quality.NewSynchronizer(ledger)
	require.NoError(t, sync.SyncFromCheck(ctx, check, uuid.New()))

	got, ok := ledger.Get(row.ID)
	require.True(t, ok)
	assert.False(t, got.MachineActivated)
	assert.Nil(t, got.ActivationDate)
}

func TestSyncFromCheck_KeepsExistingDecisionStamp(t *testing.T) {
	ctx := context.Background()
	ledger := testutil.NewFakeLedgerStore()
	machineID := uuid.New()
	check := testutil.NewCheck(machineID).WithStatus(store.CheckApproved).Build()

	originalDecider := uuid.New()
	decidedAt := time.Now().Add(-48 * time.Hour)
	row := ledger.Add(testutil.NewLedgerRow(check.ID, machineID).
		WithStatus(store.StatusApproved).
		WithDecision(originalDecider, decidedAt).
		Build())

	sync := quality.NewSynchronizer(ledger)
	require.NoError(t, sync.SyncFromCheck(ctx, check, uuid.New()))

	got, ok := ledger.Get(row.ID)
	require.True(t, ok)
	require.NotNil(t, got.DecidedBy)
	assert.Equal(t, originalDecider, *got.DecidedBy, "a row already decided keeps its original stamp")
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.DecidedAt.Equal(decidedAt))
}

func TestSyncFromCheck_PendingClearsDecision(t *testing.T) {
	ctx := context.Background()
	ledger := testutil.NewFakeLedgerStore()
	machineID := uuid.New()
	check := testutil.NewCheck(machineID).Build() // PENDING

	row := ledger.Add(testutil.NewLedgerRow(check.ID, machineID).
		WithStatus(store.StatusApproved).
		WithDecision(uuid.New(), time.Now()).
		Build())

	sync := quality.NewSynchronizer(ledger)
	require.NoError(t, sync.SyncFromCheck(ctx, check, uuid.New()))

	got, ok := ledger.Get(row.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusPending, got.Status)
	assert.Nil(t, got.DecidedBy)
	assert.Nil(t, got.DecidedAt)
}

func TestSyncFromCheck_PartialFailureStillUpdatesOthers(t *testing.T) {
	ctx := context.Background()
	ledger := testutil.NewFakeLedgerStore()
	machineID := uuid.New()
	check := testutil.NewCheck(machineID).WithStatus(store.CheckRejected).Build()

	healthy := ledger.Add(testutil.NewLedgerRow(check.ID, machineID).Build())
	broken := ledger.Add(testutil.NewLedgerRow(check.ID, machineID).Build())
	ledger.FailIDs[broken.ID] = true

	sync := quality.NewSynchronizer(ledger)
	err := sync.SyncFromCheck(ctx, check, uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.ID.String())

	got, ok := ledger.Get(healthy.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusRejected, got.Status, "a failing row must not block the others")

	got, ok = ledger.Get(broken.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusPending, got.Status)
}

func TestReopenRejected_ResetsOnlyRejectedRows(t *testing.T) {
	ctx := context.Background()
	ledger := testutil.NewFakeLedgerStore()
	machineID := uuid.New()
	checkID := uuid.New()

	rejected := ledger.Add(testutil.NewLedgerRow(checkID, machineID).
		WithStatus(store.StatusRejected).
		WithDecision(uuid.New(), time.Now()).
		Build())
	approved := ledger.Add(testutil.NewLedgerRow(checkID, machineID).
		WithStatus(store.StatusApproved).
		WithDecision(uuid.New(), time.Now()).
		Build())

	sync := quality.NewSynchronizer(ledger)
	reopened, err := sync.ReopenRejected(ctx, checkID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reopened)

	got, ok := ledger.Get(rejected.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusPending, got.Status)
	assert.Nil(t, got.DecidedBy)
	assert.Nil(t, got.DecidedAt)

	got, ok = ledger.Get(approved.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusApproved, got.Status, "approved rows are not reopened")
	assert.NotNil(t, got.DecidedBy)
}
