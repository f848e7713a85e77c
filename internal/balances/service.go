package balances

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/pkg/db"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
	"github.com/angelmondragon/messledger-backend/pkg/metrics"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type operationRecorder interface {
	Observe(operation string, started time.Time, err error)
}

// PeriodSummary identifies the period a report covers.
type PeriodSummary struct {
	ID     uuid.UUID          `json:"id"`
	Code   string             `json:"code"`
	Year   int                `json:"year"`
	Month  int                `json:"month"`
	Status enums.PeriodStatus `json:"status"`
}

func summarize(p models.Period) PeriodSummary {
	return PeriodSummary{ID: p.ID, Code: p.Code, Year: p.Year, Month: p.Month, Status: p.Status}
}

// PeriodReport lists item balances for one period.
type PeriodReport struct {
	Period PeriodSummary `json:"period"`
	Items  []ItemBalance `json:"items"`
}

// Drift is the live value minus the snapshot value for each stored figure.
type Drift struct {
	OpeningQty  decimal.Decimal `json:"opening_qty"`
	OpeningAmt  decimal.Decimal `json:"opening_amt"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	ReceivedAmt decimal.Decimal `json:"received_amt"`
	ConsumedQty decimal.Decimal `json:"consumed_qty"`
	ConsumedAmt decimal.Decimal `json:"consumed_amt"`
	ClosingQty  decimal.Decimal `json:"closing_qty"`
	ClosingAmt  decimal.Decimal `json:"closing_amt"`
}

func (d Drift) IsZero() bool {
	for _, v := range []decimal.Decimal{
		d.OpeningQty, d.OpeningAmt, d.ReceivedQty, d.ReceivedAmt,
		d.ConsumedQty, d.ConsumedAmt, d.ClosingQty, d.ClosingAmt,
	} {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// ReconcileLine compares one item's snapshot with its live balance.
type ReconcileLine struct {
	ItemID   uuid.UUID    `json:"item_id"`
	ItemName string       `json:"item_name"`
	Snapshot *ItemBalance `json:"snapshot"`
	Live     *ItemBalance `json:"live"`
	Drift    Drift        `json:"drift"`
	Drifted  bool         `json:"drifted"`
}

// ReconcileReport flags post-close changes to a closed period.
type ReconcileReport struct {
	Period  PeriodSummary   `json:"period"`
	Items   []ReconcileLine `json:"items"`
	Drifted bool            `json:"drifted"`
}

// Service serves balance reports.
type Service interface {
	PeriodItemBalances(ctx context.Context, code string) (*PeriodReport, error)
	Snapshot(ctx context.Context, code string) (*PeriodReport, error)
	Reconcile(ctx context.Context, code string) (*ReconcileReport, error)
}

type service struct {
	tx         txRunner
	snapshots  SnapshotRepository
	calculator *Calculator
	logg       *logger.Logger
	metrics    operationRecorder
}

// NewService builds the report service.
func NewService(tx txRunner, snapshots SnapshotRepository, calculator *Calculator, logg *logger.Logger, recorder operationRecorder) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if calculator == nil {
		calculator = NewCalculator()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:         tx,
		snapshots:  snapshots,
		calculator: calculator,
		logg:       logg,
		metrics:    recorder,
	}, nil
}

func (s *service) PeriodItemBalances(ctx context.Context, code string) (report *PeriodReport, err error) {
	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.Observe(metrics.OpComputeBalances, started, err)
		}
	}()

	if _, _, err := models.ParsePeriodCode(code); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := ConsistentRead(tx); err != nil {
			return err
		}
		period, err := FindPeriod(ctx, tx, code)
		if err != nil {
			return err
		}
		items, err := s.calculator.Compute(ctx, tx, *period)
		if err != nil {
			return err
		}
		report = &PeriodReport{Period: summarize(*period), Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *service) Snapshot(ctx context.Context, code string) (*PeriodReport, error) {
	if _, _, err := models.ParsePeriodCode(code); err != nil {
		return nil, err
	}

	var report *PeriodReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		period, err := FindPeriod(ctx, tx, code)
		if err != nil {
			return err
		}
		balances, err := s.loadSnapshot(ctx, tx, *period)
		if err != nil {
			return err
		}
		report = &PeriodReport{Period: summarize(*period), Items: balances}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *service) Reconcile(ctx context.Context, code string) (*ReconcileReport, error) {
	if _, _, err := models.ParsePeriodCode(code); err != nil {
		return nil, err
	}

	var report *ReconcileReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := ConsistentRead(tx); err != nil {
			return err
		}
		period, err := FindPeriod(ctx, tx, code)
		if err != nil {
			return err
		}
		if period.Status == enums.PeriodStatusOpen {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "period is open and has no snapshot").
				WithDetails(map[string]any{"period": period.Code})
		}

		snapshot, err := s.loadSnapshot(ctx, tx, *period)
		if err != nil {
			return err
		}
		live, err := s.calculator.Compute(ctx, tx, *period)
		if err != nil {
			return err
		}
		report = reconcile(*period, snapshot, live)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Drifted {
		ctx = s.logg.WithPeriodCode(ctx, code)
		s.logg.Warn(ctx, "period.snapshot_drift")
	}
	return report, nil
}

func (s *service) loadSnapshot(ctx context.Context, tx *gorm.DB, period models.Period) ([]ItemBalance, error) {
	rows, err := s.snapshots.WithTx(tx).ListForPeriod(ctx, period.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load snapshot")
	}
	if len(rows) == 0 {
		return []ItemBalance{}, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ItemID)
	}
	var items []models.Item
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load snapshot items")
	}
	byID := make(map[uuid.UUID]models.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	result := make([]ItemBalance, 0, len(rows))
	for _, row := range rows {
		result = append(result, FromSnapshot(row, byID[row.ItemID]))
	}
	sortByName(result)
	return result, nil
}

func reconcile(period models.Period, snapshot, live []ItemBalance) *ReconcileReport {
	report := &ReconcileReport{Period: summarize(period), Items: []ReconcileLine{}}

	liveByID := make(map[uuid.UUID]ItemBalance, len(live))
	for _, b := range live {
		liveByID[b.ItemID] = b
	}
	seen := make(map[uuid.UUID]struct{}, len(snapshot))

	for i := range snapshot {
		snap := snapshot[i]
		seen[snap.ItemID] = struct{}{}
		line := ReconcileLine{ItemID: snap.ItemID, ItemName: snap.ItemName, Snapshot: &snap}
		if current, ok := liveByID[snap.ItemID]; ok {
			line.Live = &current
		}
		line.Drift = drift(line.Snapshot, line.Live)
		line.Drifted = !line.Drift.IsZero()
		report.Items = append(report.Items, line)
	}
	for i := range live {
		current := live[i]
		if _, ok := seen[current.ItemID]; ok {
			continue
		}
		line := ReconcileLine{ItemID: current.ItemID, ItemName: current.ItemName, Live: &current}
		line.Drift = drift(nil, line.Live)
		line.Drifted = !line.Drift.IsZero()
		report.Items = append(report.Items, line)
	}

	for _, line := range report.Items {
		if line.Drifted {
			report.Drifted = true
			break
		}
	}
	return report
}

func drift(snapshot, live *ItemBalance) Drift {
	zero := NewBucket(decimal.Zero, decimal.Zero)
	pick := func(b *ItemBalance) ItemBalance {
		if b == nil {
			return ItemBalance{Opening: zero, Received: zero, Consumed: Consumed{Total: zero}, Closing: zero}
		}
		return *b
	}
	s, l := pick(snapshot), pick(live)
	return Drift{
		OpeningQty:  numeric.RoundQty(l.Opening.Qty.Sub(s.Opening.Qty)),
		OpeningAmt:  numeric.RoundAmount(l.Opening.Amount.Sub(s.Opening.Amount)),
		ReceivedQty: numeric.RoundQty(l.Received.Qty.Sub(s.Received.Qty)),
		ReceivedAmt: numeric.RoundAmount(l.Received.Amount.Sub(s.Received.Amount)),
		ConsumedQty: numeric.RoundQty(l.Consumed.Total.Qty.Sub(s.Consumed.Total.Qty)),
		ConsumedAmt: numeric.RoundAmount(l.Consumed.Total.Amount.Sub(s.Consumed.Total.Amount)),
		ClosingQty:  numeric.RoundQty(l.Closing.Qty.Sub(s.Closing.Qty)),
		ClosingAmt:  numeric.RoundAmount(l.Closing.Amount.Sub(s.Closing.Amount)),
	}
}

// FindPeriod resolves a period code inside tx, mapping a miss to NOT_FOUND.
func FindPeriod(ctx context.Context, tx *gorm.DB, code string) (*models.Period, error) {
	var period models.Period
	if err := tx.WithContext(ctx).First(&period, "code = ?", code).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "period not found").
				WithDetails(map[string]any{"period": code})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load period")
	}
	return &period, nil
}

func sortByName(balances []ItemBalance) {
	sort.SliceStable(balances, func(i, j int) bool {
		return balances[i].ItemName < balances[j].ItemName
	})
}

// ConsistentRead upgrades a Postgres transaction to a single snapshot so
// multi-query reports never mix committed states. Other stores are left as is.
func ConsistentRead(tx *gorm.DB) error {
	if tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SET TRANSACTION ISOLATION LEVEL REPEATABLE READ, READ ONLY").Error
}
