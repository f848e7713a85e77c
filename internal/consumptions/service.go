package consumptions

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/internal/fifo"
	"github.com/angelmondragon/messledger-backend/internal/items"
	"github.com/angelmondragon/messledger-backend/internal/periods"
	"github.com/angelmondragon/messledger-backend/pkg/db"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
	"github.com/angelmondragon/messledger-backend/pkg/metrics"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
	"github.com/angelmondragon/messledger-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type operationRecorder interface {
	Observe(operation string, started time.Time, err error)
}

type lotAllocator interface {
	Allocate(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, qty decimal.Decimal) ([]fifo.Allocation, error)
	Reverse(ctx context.Context, tx *gorm.DB, allocations []models.ConsumptionAllocation) error
}

// LineInput is one item to draw.
type LineInput struct {
	ItemID   uuid.UUID
	Quantity decimal.Decimal
}

// CreateInput describes a consumption to record in an open period.
type CreateInput struct {
	PeriodCode string
	Notes      *string
	Lines      []LineInput
}

// ListResult is one page of consumptions.
type ListResult struct {
	Consumptions []models.Consumption
	NextCursor   string
}

// Service records consumptions against FIFO lots and reverses them on void.
type Service interface {
	Create(ctx context.Context, input CreateInput, actor uuid.UUID) (*models.Consumption, error)
	Void(ctx context.Context, id uuid.UUID, reason string, actor uuid.UUID) (*models.Consumption, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Consumption, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
}

type service struct {
	tx        txRunner
	repo      Repository
	periods   periods.Repository
	items     items.Repository
	allocator lotAllocator
	logg      *logger.Logger
	metrics   operationRecorder
	now       func() time.Time
}

// NewService wires the consumption service.
func NewService(
	tx txRunner,
	repo Repository,
	periodRepo periods.Repository,
	itemRepo items.Repository,
	allocator lotAllocator,
	logg *logger.Logger,
	recorder operationRecorder,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("consumption repository required")
	}
	if periodRepo == nil {
		return nil, fmt.Errorf("period repository required")
	}
	if itemRepo == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if allocator == nil {
		return nil, fmt.Errorf("lot allocator required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if recorder == nil {
		recorder = (*metrics.LedgerMetrics)(nil)
	}
	return &service{
		tx:        tx,
		repo:      repo,
		periods:   periodRepo,
		items:     itemRepo,
		allocator: allocator,
		logg:      logg,
		metrics:   recorder,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create allocates every line against the item's lots, oldest first, and
// records the consumption. Lines are allocated in request order, so a later
// line for the same item sees the lots drained by an earlier one. Any
// failure rolls back every lot already touched.
func (s *service) Create(ctx context.Context, input CreateInput, actor uuid.UUID) (created *models.Consumption, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(metrics.OpCreateConsumption, started, err) }()

	if err := validateCreate(input); err != nil {
		return nil, err
	}

	allocationCount := 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		period, err := periods.FindForWrite(ctx, s.periods.WithTx(tx), input.PeriodCode)
		if err != nil {
			return err
		}

		itemIDs := make([]uuid.UUID, 0, len(input.Lines))
		for _, line := range input.Lines {
			itemIDs = append(itemIDs, line.ItemID)
		}
		if _, err := items.Resolve(ctx, s.items.WithTx(tx), itemIDs); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		consumption := &models.Consumption{
			PeriodID:  period.ID,
			Notes:     trimmed(input.Notes),
			CreatedBy: actorRef(actor),
		}
		if err := repo.Create(ctx, consumption); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create consumption")
		}
		// Each line is written before the next is allocated so the allocator
		// sees its amounts.
		for _, line := range input.Lines {
			qty := numeric.RoundQty(line.Quantity)
			allocations, err := s.allocator.Allocate(ctx, tx, line.ItemID, qty)
			if err != nil {
				var shortage *fifo.InsufficientStockError
				if stdErrors.As(err, &shortage) {
					return shortage.AsAppError()
				}
				return err
			}
			record := &models.ConsumptionLine{ConsumptionID: consumption.ID, ItemID: line.ItemID, EnteredQty: qty}
			for _, a := range allocations {
				record.Allocations = append(record.Allocations, models.ConsumptionAllocation{
					ReceiptLineID: a.ReceiptLineID,
					Qty:           a.Qty,
					Rate:          a.Rate,
					Amount:        a.Amount,
				})
			}
			if err := repo.CreateLine(ctx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create consumption line")
			}
			allocationCount += len(record.Allocations)
		}

		created, err = repo.FindByID(ctx, consumption.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload consumption")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"consumption_id": created.ID.String(),
		"period":         input.PeriodCode,
		"lines":          len(created.Lines),
		"allocations":    allocationCount,
		"actor_id":       actor.String(),
	})
	s.logg.Info(ctx, "consumption.created")
	return created, nil
}

// Void restores every allocation's quantity to its lot and flags the
// consumption void. Lines and allocations are kept for audit.
func (s *service) Void(ctx context.Context, id uuid.UUID, reason string, actor uuid.UUID) (voided *models.Consumption, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(metrics.OpVoidConsumption, started, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "void reason is required")
	}

	restored := 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		consumption, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapLookupError(err, id)
		}
		if consumption.IsVoid {
			return pkgerrors.New(pkgerrors.CodeConflict, "consumption is already voided").
				WithDetails(map[string]any{"consumption_id": id.String()})
		}

		period, err := s.periods.WithTx(tx).FindByID(ctx, consumption.PeriodID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load consumption period")
		}
		if period.Status == enums.PeriodStatusLocked {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "period is locked").
				WithDetails(map[string]any{"period": period.Code})
		}

		allocations, err := repo.Allocations(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load allocations")
		}
		if err := s.allocator.Reverse(ctx, tx, allocations); err != nil {
			return err
		}
		restored = len(allocations)

		if err := repo.Update(ctx, id, map[string]any{
			"is_void":     true,
			"void_reason": reason,
			"voided_at":   s.now(),
			"voided_by":   actorRef(actor),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "void consumption")
		}

		voided, err = repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload consumption")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"consumption_id": id.String(),
		"allocations":    restored,
		"actor_id":       actor.String(),
	})
	s.logg.Info(ctx, "consumption.voided")
	return voided, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Consumption, error) {
	consumption, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, id)
	}
	return consumption, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.PeriodCode != "" {
		if _, _, err := models.ParsePeriodCode(filter.PeriodCode); err != nil {
			return nil, err
		}
	}
	cursor, err := pagination.ParseCursor(filter.Page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, filter, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list consumptions")
	}
	page, next := pagination.Trim(rows, filter.Page.Limit, func(c models.Consumption) uuid.UUID { return c.ID })
	return &ListResult{Consumptions: page, NextCursor: next}, nil
}

func validateCreate(input CreateInput) error {
	if _, _, err := models.ParsePeriodCode(input.PeriodCode); err != nil {
		return err
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	problems := map[string]string{}
	for i, line := range input.Lines {
		key := fmt.Sprintf("lines[%d]", i)
		switch {
		case line.ItemID == uuid.Nil:
			problems[key] = "item_id is required"
		case !line.Quantity.IsPositive():
			problems[key] = "quantity must be positive"
		case !line.Quantity.Equal(numeric.RoundQty(line.Quantity)):
			problems[key] = "quantity allows at most 3 decimal places"
		case !numeric.QtyInRange(line.Quantity):
			problems[key] = "quantity is too large"
		}
	}
	if len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid consumption lines").WithDetails(problems)
	}
	return nil
}

func mapLookupError(err error, id uuid.UUID) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "consumption not found").
			WithDetails(map[string]any{"consumption_id": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load consumption")
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func actorRef(actor uuid.UUID) *uuid.UUID {
	if actor == uuid.Nil {
		return nil
	}
	id := actor
	return &id
}
