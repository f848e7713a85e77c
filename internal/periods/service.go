package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/internal/balances"
	"github.com/angelmondragon/messledger-backend/internal/fifo"
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

type balanceCalculator interface {
	Compute(ctx context.Context, tx *gorm.DB, period models.Period) ([]balances.ItemBalance, error)
}

type ledgerRecorder interface {
	Observe(operation string, started time.Time, err error)
	IncTallyMismatch()
}

// CloseOptions tunes the tally gate applied at close.
type CloseOptions struct {
	RequireTally bool
	Tolerance    decimal.Decimal
}

// CloseResult carries the balances materialized by a close.
type CloseResult struct {
	Period   *models.Period
	Balances []balances.ItemBalance
}

// Service drives the period lifecycle OPEN -> CLOSED -> LOCKED, with reopen
// from CLOSED. At most one period is OPEN at any time.
type Service interface {
	Create(ctx context.Context, code string, actor uuid.UUID) (*models.Period, error)
	Close(ctx context.Context, code string, actor uuid.UUID) (*CloseResult, error)
	Reopen(ctx context.Context, code string, actor uuid.UUID) (*models.Period, error)
	Lock(ctx context.Context, code string, actor uuid.UUID) (*models.Period, error)
	Get(ctx context.Context, code string) (*models.Period, error)
	List(ctx context.Context) ([]models.Period, error)
	Current(ctx context.Context) (*models.Period, error)
}

type service struct {
	tx         txRunner
	repo       Repository
	snapshots  balances.SnapshotRepository
	calculator balanceCalculator
	opts       CloseOptions
	logg       *logger.Logger
	metrics    ledgerRecorder
	now        func() time.Time
}

// NewService wires the period lifecycle service.
func NewService(
	tx txRunner,
	repo Repository,
	snapshots balances.SnapshotRepository,
	calculator balanceCalculator,
	opts CloseOptions,
	logg *logger.Logger,
	recorder ledgerRecorder,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("period repository required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if calculator == nil {
		return nil, fmt.Errorf("balance calculator required")
	}
	if opts.Tolerance.IsNegative() {
		return nil, fmt.Errorf("tally tolerance must not be negative")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if recorder == nil {
		recorder = (*metrics.LedgerMetrics)(nil)
	}
	return &service{
		tx:         tx,
		repo:       repo,
		snapshots:  snapshots,
		calculator: calculator,
		opts:       opts,
		logg:       logg,
		metrics:    recorder,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, code string, actor uuid.UUID) (*models.Period, error) {
	year, month, err := models.ParsePeriodCode(code)
	if err != nil {
		return nil, err
	}

	var created *models.Period
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByYearMonth(ctx, year, month); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "period already exists").
				WithDetails(map[string]any{"period": code})
		} else if !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing period")
		}

		if err := ensureNoOtherOpen(ctx, repo, uuid.Nil); err != nil {
			return err
		}

		now := s.now()
		period := &models.Period{
			Code:      models.PeriodCode(year, month),
			Year:      year,
			Month:     month,
			Status:    enums.PeriodStatusOpen,
			OpenedAt:  &now,
			CreatedBy: actorRef(actor),
		}
		if err := repo.Create(ctx, period); err != nil {
			return err
		}
		created = period
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err, code)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"period": created.Code, "actor_id": actor.String()})
	s.logg.Info(ctx, "period.created")
	return created, nil
}

func (s *service) Close(ctx context.Context, code string, actor uuid.UUID) (result *CloseResult, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(metrics.OpClosePeriod, started, err) }()

	if _, _, err := models.ParsePeriodCode(code); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		period, err := lockPeriod(ctx, repo, code)
		if err != nil {
			return err
		}
		if period.Status != enums.PeriodStatusOpen {
			return notOpen(period)
		}

		if err := fifo.VerifyLots(ctx, tx); err != nil {
			if ids := fifo.ViolatingLines(err); len(ids) > 0 {
				return pkgerrors.Wrap(pkgerrors.CodeInvalidState, err, "receipt lines out of bounds").
					WithDetails(map[string]any{"receipt_line_ids": ids})
			}
			return err
		}

		computed, err := s.calculator.Compute(ctx, tx, *period)
		if err != nil {
			return err
		}
		if err := s.checkBalances(computed); err != nil {
			return err
		}

		rows := make([]models.PeriodItemBalance, 0, len(computed))
		for _, b := range computed {
			rows = append(rows, balances.ToSnapshot(period.ID, b))
		}
		if err := s.snapshots.WithTx(tx).Replace(ctx, period.ID, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "materialize balances")
		}

		now := s.now()
		if err := repo.Update(ctx, period.ID, map[string]any{
			"status":    enums.PeriodStatusClosed,
			"closed_at": now,
			"closed_by": actorRef(actor),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close period")
		}
		period.Status = enums.PeriodStatusClosed
		period.ClosedAt = &now
		period.ClosedBy = actorRef(actor)

		result = &CloseResult{Period: period, Balances: computed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"period":   code,
		"actor_id": actor.String(),
		"items":    len(result.Balances),
	})
	s.logg.Info(ctx, "period.closed")
	return result, nil
}

func (s *service) checkBalances(computed []balances.ItemBalance) error {
	negative := []string{}
	mismatched := []string{}
	for _, b := range computed {
		if b.Closing.Qty.IsNegative() {
			negative = append(negative, b.ItemID.String())
		}
		if b.TallyCheck.Abs().GreaterThan(s.opts.Tolerance) {
			s.metrics.IncTallyMismatch()
			mismatched = append(mismatched, b.ItemID.String())
		}
	}
	if len(negative) > 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "negative closing balance").
			WithDetails(map[string]any{"item_ids": negative})
	}
	if len(mismatched) > 0 && s.opts.RequireTally {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "period does not tally").
			WithDetails(map[string]any{
				"item_ids":  mismatched,
				"tolerance": s.opts.Tolerance.StringFixed(numeric.AmountPlaces),
			})
	}
	return nil
}

func (s *service) Reopen(ctx context.Context, code string, actor uuid.UUID) (reopened *models.Period, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(metrics.OpReopenPeriod, started, err) }()

	if _, _, err := models.ParsePeriodCode(code); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		period, err := lockPeriod(ctx, repo, code)
		if err != nil {
			return err
		}
		switch period.Status {
		case enums.PeriodStatusOpen:
			return pkgerrors.New(pkgerrors.CodeInvalidState, "period is already open").
				WithDetails(map[string]any{"period": period.Code})
		case enums.PeriodStatusLocked:
			return pkgerrors.New(pkgerrors.CodeInvalidState, "period is locked").
				WithDetails(map[string]any{"period": period.Code})
		}

		if err := ensureNoOtherOpen(ctx, repo, period.ID); err != nil {
			return err
		}

		now := s.now()
		if err := repo.Update(ctx, period.ID, map[string]any{
			"status":    enums.PeriodStatusOpen,
			"opened_at": now,
			"closed_at": nil,
			"closed_by": nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reopen period")
		}
		if err := s.snapshots.WithTx(tx).DeleteForPeriod(ctx, period.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "drop balance snapshot")
		}

		period.Status = enums.PeriodStatusOpen
		period.OpenedAt = &now
		period.ClosedAt = nil
		period.ClosedBy = nil
		reopened = period
		return nil
	})
	if err != nil {
		return nil, mapWriteError(err, code)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"period": code, "actor_id": actor.String()})
	s.logg.Info(ctx, "period.reopened")
	return reopened, nil
}

func (s *service) Lock(ctx context.Context, code string, actor uuid.UUID) (*models.Period, error) {
	if _, _, err := models.ParsePeriodCode(code); err != nil {
		return nil, err
	}

	var locked *models.Period
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		period, err := lockPeriod(ctx, repo, code)
		if err != nil {
			return err
		}
		if period.Status != enums.PeriodStatusClosed {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "only closed periods can be locked").
				WithDetails(map[string]any{"period": period.Code, "status": period.Status})
		}

		now := s.now()
		if err := repo.Update(ctx, period.ID, map[string]any{
			"status":    enums.PeriodStatusLocked,
			"locked_at": now,
			"locked_by": actorRef(actor),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock period")
		}
		period.Status = enums.PeriodStatusLocked
		period.LockedAt = &now
		period.LockedBy = actorRef(actor)
		locked = period
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"period": code, "actor_id": actor.String()})
	s.logg.Info(ctx, "period.locked")
	return locked, nil
}

func (s *service) Get(ctx context.Context, code string) (*models.Period, error) {
	if _, _, err := models.ParsePeriodCode(code); err != nil {
		return nil, err
	}
	period, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, mapLookupError(err, code)
	}
	return period, nil
}

func (s *service) List(ctx context.Context) ([]models.Period, error) {
	periods, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list periods")
	}
	return periods, nil
}

func (s *service) Current(ctx context.Context) (*models.Period, error) {
	period, err := s.repo.FindOpen(ctx)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no open period")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open period")
	}
	return period, nil
}

// EnsureOpen rejects writes into a period that is not OPEN.
func EnsureOpen(period *models.Period) error {
	if period.Status != enums.PeriodStatusOpen {
		return notOpen(period)
	}
	return nil
}

// FindForWrite resolves code for a write into the period, holding a shared
// lock so the period cannot close underneath the caller.
func FindForWrite(ctx context.Context, repo Repository, code string) (*models.Period, error) {
	period, err := repo.FindByCodeForShare(ctx, code)
	if err != nil {
		return nil, mapLookupError(err, code)
	}
	if err := EnsureOpen(period); err != nil {
		return nil, err
	}
	return period, nil
}

func lockPeriod(ctx context.Context, repo Repository, code string) (*models.Period, error) {
	period, err := repo.FindByCodeForUpdate(ctx, code)
	if err != nil {
		return nil, mapLookupError(err, code)
	}
	return period, nil
}

func ensureNoOtherOpen(ctx context.Context, repo Repository, self uuid.UUID) error {
	open, err := repo.FindOpen(ctx)
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open period")
	}
	if open.ID == self {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "another period is open").
		WithDetails(map[string]any{"open_period": open.Code})
}

func notOpen(period *models.Period) error {
	return pkgerrors.New(pkgerrors.CodeInvalidState, "period is not open").
		WithDetails(map[string]any{"period": period.Code, "status": period.Status})
}

func mapLookupError(err error, code string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "period not found").
			WithDetails(map[string]any{"period": code})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load period")
}

// mapWriteError turns store-level uniqueness failures, including the
// single-open-period index, into conflicts.
func mapWriteError(err error, code string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "period conflict").
			WithDetails(map[string]any{"period": code})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write period")
}

func actorRef(actor uuid.UUID) *uuid.UUID {
	if actor == uuid.Nil {
		return nil
	}
	id := actor
	return &id
}
