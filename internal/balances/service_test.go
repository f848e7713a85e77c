package balances

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/messledger-backend/internal/ledgertest"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
)

func TestService_PeriodItemBalances(t *testing.T) {
	client := ledgertest.NewClient(t)
	conn := client.DB()
	svc, err := NewService(client, NewSnapshotRepository(conn), nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	rice := ledgertest.Item(t, conn, "Rice")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)
	ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "10", Rate: "3.00"})

	report, err := svc.PeriodItemBalances(ctx, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-01", report.Period.Code)
	require.Len(t, report.Items, 1)
	ledgertest.RequireEqual(t, "30", report.Items[0].Closing.Amount, "closing amount")

	_, err = svc.PeriodItemBalances(ctx, "2024-05")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.PeriodItemBalances(ctx, "jan-2024")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestService_SnapshotAndReconcile(t *testing.T) {
	client := ledgertest.NewClient(t)
	conn := client.DB()
	snapshots := NewSnapshotRepository(conn)
	svc, err := NewService(client, snapshots, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	rice := ledgertest.Item(t, conn, "Rice")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)
	ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "100", Rate: "10.00"})
	consumption := consume(t, conn, jan, rice, "30")

	_, err = svc.Reconcile(ctx, "2024-01")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))

	computed, err := NewCalculator().Compute(ctx, conn, jan)
	require.NoError(t, err)
	rows := make([]models.PeriodItemBalance, 0, len(computed))
	for _, b := range computed {
		rows = append(rows, ToSnapshot(jan.ID, b))
	}
	require.NoError(t, snapshots.Replace(ctx, jan.ID, rows))
	require.NoError(t, conn.Model(&models.Period{}).Where("id = ?", jan.ID).Update("status", enums.PeriodStatusClosed).Error)

	snapshot, err := svc.Snapshot(ctx, "2024-01")
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 1)
	assert.Equal(t, "Rice", snapshot.Items[0].ItemName)
	ledgertest.RequireEqual(t, "70", snapshot.Items[0].Closing.Qty, "snapshot closing")
	assert.True(t, snapshot.Items[0].TallyCheck.IsZero())

	clean, err := svc.Reconcile(ctx, "2024-01")
	require.NoError(t, err)
	assert.False(t, clean.Drifted)

	voidConsumption(t, conn, consumption)

	drifted, err := svc.Reconcile(ctx, "2024-01")
	require.NoError(t, err)
	assert.True(t, drifted.Drifted)
	require.Len(t, drifted.Items, 1)
	line := drifted.Items[0]
	assert.True(t, line.Drifted)
	ledgertest.RequireEqual(t, "30", line.Drift.ClosingQty, "closing qty drift")
	ledgertest.RequireEqual(t, "300", line.Drift.ClosingAmt, "closing amt drift")
	ledgertest.RequireEqual(t, "-30", line.Drift.ConsumedQty, "consumed drift")
}

func TestService_ReconcileFlagsItemsMissingFromSnapshot(t *testing.T) {
	client := ledgertest.NewClient(t)
	conn := client.DB()
	svc, err := NewService(client, NewSnapshotRepository(conn), nil, nil, nil)
	require.NoError(t, err)

	oil := ledgertest.Item(t, conn, "Oil")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusClosed)
	ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: oil, Quantity: "2", Rate: "150.00"})

	report, err := svc.Reconcile(context.Background(), "2024-01")
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Nil(t, report.Items[0].Snapshot)
	assert.NotNil(t, report.Items[0].Live)
	ledgertest.RequireEqual(t, "300", report.Items[0].Drift.ReceivedAmt, "received drift")
	assert.True(t, report.Drifted)
}
