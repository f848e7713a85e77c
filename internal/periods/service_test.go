package periods

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/internal/balances"
	"github.com/angelmondragon/messledger-backend/internal/ledgertest"
	"github.com/angelmondragon/messledger-backend/pkg/db"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
)

type fixture struct {
	client *db.Client
	conn   *gorm.DB
	svc    Service
}

func newFixture(t *testing.T, opts CloseOptions) fixture {
	t.Helper()
	client := ledgertest.NewClient(t)
	conn := client.DB()
	svc, err := NewService(
		client,
		NewRepository(conn),
		balances.NewSnapshotRepository(conn),
		balances.NewCalculator(),
		opts,
		nil,
		nil,
	)
	require.NoError(t, err)
	return fixture{client: client, conn: conn, svc: svc}
}

func defaultOpts() CloseOptions {
	return CloseOptions{RequireTally: true, Tolerance: decimal.RequireFromString("0.01")}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code(), "error: %v", err)
}

func TestCreate_OpensPeriodAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()
	actor := uuid.New()

	period, err := f.svc.Create(ctx, "2024-01", actor)
	require.NoError(t, err)
	assert.Equal(t, "2024-01", period.Code)
	assert.Equal(t, enums.PeriodStatusOpen, period.Status)
	require.NotNil(t, period.CreatedBy)
	assert.Equal(t, actor, *period.CreatedBy)

	_, err = f.svc.Create(ctx, "2024-01", actor)
	requireCode(t, err, pkgerrors.CodeConflict)

	_, err = f.svc.Create(ctx, "2024-13", actor)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestCreate_RejectsSecondOpenPeriod(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "2024-02", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeConflict)
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, "2024-01", details["open_period"])

	current, err := f.svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01", current.Code)
}

func TestClose_MaterializesSnapshot(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	rice := ledgertest.Item(t, f.conn, "Rice")
	period, err := f.svc.Create(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)
	ledgertest.Receipt(t, f.conn, *period, ledgertest.Lot{Item: rice, Quantity: "100", Rate: "10.00"})

	result, err := f.svc.Close(ctx, "2024-01", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.PeriodStatusClosed, result.Period.Status)
	require.Len(t, result.Balances, 1)
	ledgertest.RequireEqual(t, "100", result.Balances[0].Closing.Qty, "closing qty")
	ledgertest.RequireEqual(t, "1000", result.Balances[0].Closing.Amount, "closing amt")

	var rows []models.PeriodItemBalance
	require.NoError(t, f.conn.Where("period_id = ?", period.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	ledgertest.RequireEqual(t, "100", rows[0].ReceivedQty, "snapshot received")
	ledgertest.RequireEqual(t, "1000", rows[0].ClosingAmt, "snapshot closing amt")

	stored, err := f.svc.Get(ctx, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, enums.PeriodStatusClosed, stored.Status)
	assert.NotNil(t, stored.ClosedAt)

	_, err = f.svc.Close(ctx, "2024-01", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestClose_RejectsLotOutOfBounds(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	rice := ledgertest.Item(t, f.conn, "Rice")
	period, err := f.svc.Create(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)
	lot := ledgertest.Receipt(t, f.conn, *period, ledgertest.Lot{Item: rice, Quantity: "10", Rate: "1.00"}).Lines[0]
	require.NoError(t, f.conn.Model(&models.ReceiptLine{}).Where("id = ?", lot.ID).Update("remaining_qty", ledgertest.D("12")).Error)

	_, err = f.svc.Close(ctx, "2024-01", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, []string{lot.ID.String()}, details["receipt_line_ids"])

	stored, err := f.svc.Get(ctx, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, enums.PeriodStatusOpen, stored.Status)
}

type skewedCalculator struct{}

func (skewedCalculator) Compute(ctx context.Context, tx *gorm.DB, period models.Period) ([]balances.ItemBalance, error) {
	b := balances.ItemBalance{
		ItemID:     uuid.New(),
		Opening:    balances.NewBucket(decimal.Zero, decimal.Zero),
		Received:   balances.NewBucket(decimal.NewFromInt(1), decimal.NewFromInt(10)),
		Closing:    balances.NewBucket(decimal.NewFromInt(1), decimal.NewFromInt(9)),
		TallyCheck: decimal.NewFromInt(1),
	}
	return []balances.ItemBalance{b}, nil
}

func TestClose_TallyGate(t *testing.T) {
	client := ledgertest.NewClient(t)
	conn := client.DB()
	ctx := context.Background()

	strict, err := NewService(client, NewRepository(conn), balances.NewSnapshotRepository(conn), skewedCalculator{}, defaultOpts(), nil, nil)
	require.NoError(t, err)
	_, err = strict.Create(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)

	_, err = strict.Close(ctx, "2024-01", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)

	lenient, err := NewService(client, NewRepository(conn), balances.NewSnapshotRepository(conn), skewedCalculator{},
		CloseOptions{RequireTally: false, Tolerance: decimal.RequireFromString("0.01")}, nil, nil)
	require.NoError(t, err)
	_, err = lenient.Close(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)
}

func TestReopen_Rules(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)

	_, err = f.svc.Reopen(ctx, "2024-01", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)

	_, err = f.svc.Close(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "2024-02", uuid.Nil)
	require.NoError(t, err)

	_, err = f.svc.Reopen(ctx, "2024-01", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeConflict)

	_, err = f.svc.Close(ctx, "2024-02", uuid.Nil)
	require.NoError(t, err)

	reopened, err := f.svc.Reopen(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, enums.PeriodStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)

	var snapshotRows int64
	require.NoError(t, f.conn.Model(&models.PeriodItemBalance{}).Where("period_id = ?", reopened.ID).Count(&snapshotRows).Error)
	assert.Zero(t, snapshotRows)

	stored, err := f.svc.Get(ctx, "2024-01")
	require.NoError(t, err)
	assert.Nil(t, stored.ClosedAt)
	assert.Nil(t, stored.ClosedBy)
}

func TestLock_IsTerminal(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)

	_, err = f.svc.Lock(ctx, "2024-01", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)

	_, err = f.svc.Close(ctx, "2024-01", uuid.Nil)
	require.NoError(t, err)
	locked, err := f.svc.Lock(ctx, "2024-01", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.PeriodStatusLocked, locked.Status)

	_, err = f.svc.Reopen(ctx, "2024-01", uuid.Nil)
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t, defaultOpts())
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "2030-05")
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.Current(ctx)
	requireCode(t, err, pkgerrors.CodeNotFound)

	ledgertest.Period(t, f.conn, 2023, 12, enums.PeriodStatusClosed)
	ledgertest.Period(t, f.conn, 2024, 2, enums.PeriodStatusOpen)
	ledgertest.Period(t, f.conn, 2024, 1, enums.PeriodStatusClosed)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2024-02", list[0].Code)
	assert.Equal(t, "2024-01", list[1].Code)
	assert.Equal(t, "2023-12", list[2].Code)
}

func TestFindForWrite(t *testing.T) {
	conn := ledgertest.NewDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	ledgertest.Period(t, conn, 2024, 1, enums.PeriodStatusClosed)
	ledgertest.Period(t, conn, 2024, 2, enums.PeriodStatusOpen)

	_, err := FindForWrite(ctx, repo, "2024-01")
	requireCode(t, err, pkgerrors.CodeInvalidState)

	_, err = FindForWrite(ctx, repo, "2024-03")
	requireCode(t, err, pkgerrors.CodeNotFound)

	open, err := FindForWrite(ctx, repo, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, enums.PeriodStatusOpen, open.Status)
}
