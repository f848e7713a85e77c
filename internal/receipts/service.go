package receipts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

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

// LineInput is one lot to receive.
type LineInput struct {
	ItemID   uuid.UUID
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	LotNo    *string
}

// CreateInput describes a receipt to record in an open period.
type CreateInput struct {
	PeriodCode string
	RefNo      *string
	Notes      *string
	Lines      []LineInput
}

// HeaderInput carries optional header edits; nil fields are left unchanged.
type HeaderInput struct {
	RefNo *string
	Notes *string
}

// ListResult is one page of receipts.
type ListResult struct {
	Receipts   []models.Receipt
	NextCursor string
}

// Service records and voids stock receipts.
type Service interface {
	Create(ctx context.Context, input CreateInput, actor uuid.UUID) (*models.Receipt, error)
	Void(ctx context.Context, id uuid.UUID, reason string, actor uuid.UUID) (*models.Receipt, error)
	UpdateHeader(ctx context.Context, id uuid.UUID, input HeaderInput, actor uuid.UUID) (*models.Receipt, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	periods periods.Repository
	items   items.Repository
	logg    *logger.Logger
	metrics operationRecorder
	now     func() time.Time
}

// NewService wires the receipt service.
func NewService(tx txRunner, repo Repository, periodRepo periods.Repository, itemRepo items.Repository, logg *logger.Logger, recorder operationRecorder) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("receipt repository required")
	}
	if periodRepo == nil {
		return nil, fmt.Errorf("period repository required")
	}
	if itemRepo == nil {
		return nil, fmt.Errorf("item repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if recorder == nil {
		recorder = (*metrics.LedgerMetrics)(nil)
	}
	return &service{
		tx:      tx,
		repo:    repo,
		periods: periodRepo,
		items:   itemRepo,
		logg:    logg,
		metrics: recorder,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput, actor uuid.UUID) (created *models.Receipt, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(metrics.OpCreateReceipt, started, err) }()

	if err := validateCreate(input); err != nil {
		return nil, err
	}

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

		receipt := &models.Receipt{
			PeriodID:  period.ID,
			RefNo:     trimmed(input.RefNo),
			Notes:     trimmed(input.Notes),
			CreatedBy: actorRef(actor),
		}
		for _, line := range input.Lines {
			qty := numeric.RoundQty(line.Quantity)
			rate := numeric.RoundAmount(line.Rate)
			receipt.Lines = append(receipt.Lines, models.ReceiptLine{
				ItemID:       line.ItemID,
				Quantity:     qty,
				Rate:         rate,
				Amount:       numeric.Amount(qty, rate),
				RemainingQty: qty,
				LotNo:        trimmed(line.LotNo),
			})
		}

		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, receipt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create receipt")
		}
		created, err = repo.FindByID(ctx, receipt.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload receipt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"receipt_id": created.ID.String(),
		"period":     input.PeriodCode,
		"lines":      len(created.Lines),
		"actor_id":   actor.String(),
	})
	s.logg.Info(ctx, "receipt.created")
	return created, nil
}

func (s *service) Void(ctx context.Context, id uuid.UUID, reason string, actor uuid.UUID) (voided *models.Receipt, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe(metrics.OpVoidReceipt, started, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "void reason is required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		receipt, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapLookupError(err, id)
		}
		if receipt.IsVoid {
			return pkgerrors.New(pkgerrors.CodeConflict, "receipt is already voided").
				WithDetails(map[string]any{"receipt_id": id.String()})
		}
		if err := s.ensureNotLocked(ctx, tx, receipt.PeriodID); err != nil {
			return err
		}

		lines, err := repo.LinesForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load receipt lines")
		}
		consumed := []string{}
		for _, line := range lines {
			if !line.Untouched() {
				consumed = append(consumed, line.ID.String())
			}
		}
		if len(consumed) > 0 {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "cannot void receipt with partially consumed lines").
				WithDetails(map[string]any{"receipt_line_ids": consumed})
		}

		if err := repo.Update(ctx, id, map[string]any{
			"is_void":     true,
			"void_reason": reason,
			"voided_at":   s.now(),
			"voided_by":   actorRef(actor),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "void receipt")
		}

		voided, err = repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload receipt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"receipt_id": id.String(), "actor_id": actor.String()})
	s.logg.Info(ctx, "receipt.voided")
	return voided, nil
}

func (s *service) UpdateHeader(ctx context.Context, id uuid.UUID, input HeaderInput, actor uuid.UUID) (*models.Receipt, error) {
	if input.RefNo == nil && input.Notes == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	var updated *models.Receipt
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		receipt, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapLookupError(err, id)
		}
		if receipt.IsVoid {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "cannot update voided receipt")
		}
		period, err := s.periods.WithTx(tx).FindByID(ctx, receipt.PeriodID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load receipt period")
		}
		if err := periods.EnsureOpen(period); err != nil {
			return err
		}

		updates := map[string]any{}
		if input.RefNo != nil {
			updates["ref_no"] = trimmed(input.RefNo)
		}
		if input.Notes != nil {
			updates["notes"] = trimmed(input.Notes)
		}
		if err := repo.Update(ctx, id, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update receipt")
		}
		updated, err = repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload receipt")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"receipt_id": id.String(), "actor_id": actor.String()})
	s.logg.Info(ctx, "receipt.updated")
	return updated, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	receipt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, id)
	}
	return receipt, nil
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list receipts")
	}
	page, next := pagination.Trim(rows, filter.Page.Limit, func(r models.Receipt) uuid.UUID { return r.ID })
	return &ListResult{Receipts: page, NextCursor: next}, nil
}

func (s *service) ensureNotLocked(ctx context.Context, tx *gorm.DB, periodID uuid.UUID) error {
	period, err := s.periods.WithTx(tx).FindByID(ctx, periodID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load receipt period")
	}
	if period.Status == enums.PeriodStatusLocked {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "period is locked").
			WithDetails(map[string]any{"period": period.Code})
	}
	return nil
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
		case line.Rate.IsNegative():
			problems[key] = "rate must not be negative"
		case !line.Rate.Equal(numeric.RoundAmount(line.Rate)):
			problems[key] = "rate allows at most 2 decimal places"
		case !numeric.RateInRange(line.Rate):
			problems[key] = "rate is too large"
		case !numeric.AmountInRange(line.Quantity, line.Rate):
			problems[key] = "amount is too large"
		}
	}
	if len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid receipt lines").WithDetails(problems)
	}
	return nil
}

func mapLookupError(err error, id uuid.UUID) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found").
			WithDetails(map[string]any{"receipt_id": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load receipt")
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
