package receipts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/internal/items"
	"github.com/angelmondragon/messledger-backend/internal/ledgertest"
	"github.com/angelmondragon/messledger-backend/internal/periods"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/pagination"
)

func newService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client := ledgertest.NewClient(t)
	conn := client.DB()
	svc, err := NewService(client, NewRepository(conn), periods.NewRepository(conn), items.NewRepository(conn), nil, nil)
	require.NoError(t, err)
	return svc, conn
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, pkgerrors.CodeOf(err), "error: %v", err)
}

func strPtr(s string) *string { return &s }

func TestCreate_RecordsLotsWithAmounts(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	rice := ledgertest.Item(t, conn, "Rice")
	dal := ledgertest.Item(t, conn, "Dal")
	ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)
	actor := uuid.New()

	receipt, err := svc.Create(ctx, CreateInput{
		PeriodCode: "2024-01",
		RefNo:      strPtr("  INV-7 "),
		Lines: []LineInput{
			{ItemID: rice.ID, Quantity: ledgertest.D("100"), Rate: ledgertest.D("10.50")},
			{ItemID: dal.ID, Quantity: ledgertest.D("12.345"), Rate: ledgertest.D("3")},
		},
	}, actor)
	require.NoError(t, err)

	require.Len(t, receipt.Lines, 2)
	require.NotNil(t, receipt.RefNo)
	assert.Equal(t, "INV-7", *receipt.RefNo)
	require.NotNil(t, receipt.CreatedBy)
	assert.Equal(t, actor, *receipt.CreatedBy)
	require.NotNil(t, receipt.Period)
	assert.Equal(t, "2024-01", receipt.Period.Code)

	byItem := map[uuid.UUID]models.ReceiptLine{}
	for _, line := range receipt.Lines {
		byItem[line.ItemID] = line
	}
	ledgertest.RequireEqual(t, "1050.00", byItem[rice.ID].Amount, "rice amount")
	ledgertest.RequireEqual(t, "100", byItem[rice.ID].RemainingQty, "rice remaining")
	ledgertest.RequireEqual(t, "37.04", byItem[dal.ID].Amount, "dal amount")
	ledgertest.RequireEqual(t, "12.345", byItem[dal.ID].RemainingQty, "dal remaining")
}

func TestCreate_ValidatesInput(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	rice := ledgertest.Item(t, conn, "Rice")
	ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)

	cases := map[string]CreateInput{
		"bad period": {PeriodCode: "2024-13", Lines: []LineInput{{ItemID: rice.ID, Quantity: ledgertest.D("1"), Rate: ledgertest.D("1")}}},
		"no lines":   {PeriodCode: "2024-01"},
		"zero qty":   {PeriodCode: "2024-01", Lines: []LineInput{{ItemID: rice.ID, Quantity: ledgertest.D("0"), Rate: ledgertest.D("1")}}},
		"qty scale":  {PeriodCode: "2024-01", Lines: []LineInput{{ItemID: rice.ID, Quantity: ledgertest.D("1.2345"), Rate: ledgertest.D("1")}}},
		"neg rate":   {PeriodCode: "2024-01", Lines: []LineInput{{ItemID: rice.ID, Quantity: ledgertest.D("1"), Rate: ledgertest.D("-1")}}},
		"rate scale": {PeriodCode: "2024-01", Lines: []LineInput{{ItemID: rice.ID, Quantity: ledgertest.D("1"), Rate: ledgertest.D("1.005")}}},
		"no item":    {PeriodCode: "2024-01", Lines: []LineInput{{Quantity: ledgertest.D("1"), Rate: ledgertest.D("1")}}},
		"huge qty":   {PeriodCode: "2024-01", Lines: []LineInput{{ItemID: rice.ID, Quantity: ledgertest.D("1e16"), Rate: ledgertest.D("1")}}},
		"huge rate":  {PeriodCode: "2024-01", Lines: []LineInput{{ItemID: rice.ID, Quantity: ledgertest.D("1"), Rate: ledgertest.D("1e16")}}},
		"huge amt":   {PeriodCode: "2024-01", Lines: []LineInput{{ItemID: rice.ID, Quantity: ledgertest.D("100000000"), Rate: ledgertest.D("100000000")}}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, input, uuid.Nil)
			requireCode(t, err, pkgerrors.CodeValidation)
		})
	}

	_, err := svc.Create(ctx, CreateInput{PeriodCode: "2024-01", Lines: []LineInput{
		{ItemID: rice.ID, Quantity: ledgertest.D("1"), Rate: ledgertest.D("1")},
		{ItemID: rice.ID, Quantity: ledgertest.D("100000000"), Rate: ledgertest.D("100000000")},
	}}, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, map[string]string{"lines[1]": "amount is too large"}, pkgerrors.As(err).Details())

	var count int64
	require.NoError(t, conn.Model(&models.Receipt{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreate_RejectsClosedPeriodAndUnknownItems(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	rice := ledgertest.Item(t, conn, "Rice")
	ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusClosed)
	ledgertest.Period(t, conn, 2024, 2, enums.PeriodStatusOpen)

	line := LineInput{ItemID: rice.ID, Quantity: ledgertest.D("1"), Rate: ledgertest.D("1")}

	_, err := svc.Create(ctx, CreateInput{PeriodCode: "2024-01", Lines: []LineInput{line}}, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)

	_, err = svc.Create(ctx, CreateInput{PeriodCode: "2024-03", Lines: []LineInput{line}}, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeNotFound)

	missing := LineInput{ItemID: uuid.New(), Quantity: ledgertest.D("1"), Rate: ledgertest.D("1")}
	_, err = svc.Create(ctx, CreateInput{PeriodCode: "2024-02", Lines: []LineInput{line, missing}}, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeNotFound)

	var count int64
	require.NoError(t, conn.Model(&models.ReceiptLine{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestVoid_UntouchedReceipt(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	rice := ledgertest.Item(t, conn, "Rice")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)
	seeded := ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "10", Rate: "2"})
	actor := uuid.New()

	_, err := svc.Void(ctx, seeded.ID, "  ", actor)
	requireCode(t, err, pkgerrors.CodeValidation)

	voided, err := svc.Void(ctx, seeded.ID, "duplicate entry", actor)
	require.NoError(t, err)
	assert.True(t, voided.IsVoid)
	require.NotNil(t, voided.VoidReason)
	assert.Equal(t, "duplicate entry", *voided.VoidReason)
	require.NotNil(t, voided.VoidedAt)
	require.NotNil(t, voided.VoidedBy)
	assert.Equal(t, actor, *voided.VoidedBy)

	_, err = svc.Void(ctx, seeded.ID, "again", actor)
	requireCode(t, err, pkgerrors.CodeConflict)

	_, err = svc.Void(ctx, uuid.New(), "missing", actor)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestVoid_RejectsConsumedLots(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	rice := ledgertest.Item(t, conn, "Rice")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusOpen)
	seeded := ledgertest.Receipt(t, conn, jan,
		ledgertest.Lot{Item: rice, Quantity: "10", Rate: "2"},
		ledgertest.Lot{Item: rice, Quantity: "5", Rate: "2"},
	)
	consumed := seeded.Lines[1]
	require.NoError(t, conn.Model(&models.ReceiptLine{}).Where("id = ?", consumed.ID).
		Update("remaining_qty", ledgertest.D("4")).Error)

	_, err := svc.Void(ctx, seeded.ID, "wrong supplier", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)
	assert.Equal(t, map[string]any{"receipt_line_ids": []string{consumed.ID.String()}}, pkgerrors.As(err).Details())

	reloaded, err := svc.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsVoid)
}

func TestVoid_RejectsLockedPeriod(t *testing.T) {
	svc, conn := newService(t)
	rice := ledgertest.Item(t, conn, "Rice")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusLocked)
	seeded := ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "10", Rate: "2"})

	_, err := svc.Void(context.Background(), seeded.ID, "late correction", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestUpdateHeader(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	rice := ledgertest.Item(t, conn, "Rice")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusClosed)
	feb := ledgertest.Period(t, conn, 2024, 2, enums.PeriodStatusOpen)
	closed := ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "1", Rate: "1"})
	open := ledgertest.Receipt(t, conn, feb, ledgertest.Lot{Item: rice, Quantity: "1", Rate: "1"})

	_, err := svc.UpdateHeader(ctx, open.ID, HeaderInput{}, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeValidation)

	updated, err := svc.UpdateHeader(ctx, open.ID, HeaderInput{Notes: strPtr("weighed at gate")}, uuid.Nil)
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "weighed at gate", *updated.Notes)

	_, err = svc.UpdateHeader(ctx, closed.ID, HeaderInput{RefNo: strPtr("X")}, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	rice := ledgertest.Item(t, conn, "Rice")
	dal := ledgertest.Item(t, conn, "Dal")
	jan := ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusClosed)
	feb := ledgertest.Period(t, conn, 2024, 2, enums.PeriodStatusOpen)

	ledgertest.Receipt(t, conn, jan, ledgertest.Lot{Item: rice, Quantity: "1", Rate: "1"})
	first := ledgertest.Receipt(t, conn, feb, ledgertest.Lot{Item: rice, Quantity: "1", Rate: "1"})
	second := ledgertest.Receipt(t, conn, feb, ledgertest.Lot{Item: dal, Quantity: "1", Rate: "1"})
	third := ledgertest.Receipt(t, conn, feb, ledgertest.Lot{Item: rice, Quantity: "1", Rate: "1"})
	require.NoError(t, conn.Model(&models.Receipt{}).Where("id = ?", second.ID).Update("is_void", true).Error)

	page, err := svc.List(ctx, ListFilter{PeriodCode: "2024-02", Page: pagination.Params{Limit: 1}})
	require.NoError(t, err)
	require.Len(t, page.Receipts, 1)
	assert.Equal(t, third.ID, page.Receipts[0].ID)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(ctx, ListFilter{PeriodCode: "2024-02", Page: pagination.Params{Limit: 1, Cursor: page.NextCursor}})
	require.NoError(t, err)
	require.Len(t, next.Receipts, 1)
	assert.Equal(t, first.ID, next.Receipts[0].ID)
	assert.Empty(t, next.NextCursor)

	withVoid, err := svc.List(ctx, ListFilter{PeriodCode: "2024-02", IncludeVoid: true, IncludeLines: true})
	require.NoError(t, err)
	require.Len(t, withVoid.Receipts, 3)
	assert.Len(t, withVoid.Receipts[0].Lines, 1)

	byItem, err := svc.List(ctx, ListFilter{ItemID: &dal.ID, IncludeVoid: true})
	require.NoError(t, err)
	require.Len(t, byItem.Receipts, 1)
	assert.Equal(t, second.ID, byItem.Receipts[0].ID)

	_, err = svc.List(ctx, ListFilter{Page: pagination.Params{Cursor: "%%%"}})
	requireCode(t, err, pkgerrors.CodeValidation)
}
