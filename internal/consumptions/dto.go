package consumptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

// AllocationDTO is one lot drawn by a consumption line.
type AllocationDTO struct {
	ID            uuid.UUID `json:"id"`
	ReceiptLineID uuid.UUID `json:"receipt_line_id"`
	Qty           string    `json:"qty"`
	Rate          string    `json:"rate"`
	Amount        string    `json:"amount"`
}

// LineDTO carries a consumption line plus the amount and average rate
// derived from its allocations.
type LineDTO struct {
	ID          uuid.UUID       `json:"id"`
	ItemID      uuid.UUID       `json:"item_id"`
	EnteredQty  string          `json:"entered_qty"`
	Amount      string          `json:"amount"`
	AvgRate     string          `json:"avg_rate"`
	Allocations []AllocationDTO `json:"allocations"`
}

// ConsumptionDTO is the API view of a consumption.
type ConsumptionDTO struct {
	ID          uuid.UUID  `json:"id"`
	PeriodID    uuid.UUID  `json:"period_id"`
	PeriodCode  string     `json:"period_code,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	IsVoid      bool       `json:"is_void"`
	VoidReason  *string    `json:"void_reason,omitempty"`
	VoidedAt    *time.Time `json:"voided_at,omitempty"`
	VoidedBy    *uuid.UUID `json:"voided_by,omitempty"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	TotalAmount string     `json:"total_amount"`
	Lines       []LineDTO  `json:"lines,omitempty"`
}

// ConsumptionList wraps a page of consumptions plus the next page cursor.
type ConsumptionList struct {
	Consumptions []ConsumptionDTO `json:"consumptions"`
	NextCursor   string           `json:"next_cursor,omitempty"`
}

func NewConsumptionDTO(c *models.Consumption) ConsumptionDTO {
	dto := ConsumptionDTO{
		ID:         c.ID,
		PeriodID:   c.PeriodID,
		Notes:      c.Notes,
		IsVoid:     c.IsVoid,
		VoidReason: c.VoidReason,
		VoidedAt:   c.VoidedAt,
		VoidedBy:   c.VoidedBy,
		CreatedBy:  c.CreatedBy,
		CreatedAt:  c.CreatedAt,
	}
	if c.Period != nil {
		dto.PeriodCode = c.Period.Code
	}
	total := decimal.Zero
	for _, line := range c.Lines {
		view := newLineDTO(line)
		total = total.Add(lineAmount(line))
		dto.Lines = append(dto.Lines, view)
	}
	dto.TotalAmount = total.StringFixed(numeric.AmountPlaces)
	return dto
}

func NewConsumptionList(result *ListResult) ConsumptionList {
	out := ConsumptionList{Consumptions: make([]ConsumptionDTO, 0, len(result.Consumptions)), NextCursor: result.NextCursor}
	for i := range result.Consumptions {
		out.Consumptions = append(out.Consumptions, NewConsumptionDTO(&result.Consumptions[i]))
	}
	return out
}

func newLineDTO(line models.ConsumptionLine) LineDTO {
	amount := lineAmount(line)
	view := LineDTO{
		ID:          line.ID,
		ItemID:      line.ItemID,
		EnteredQty:  line.EnteredQty.StringFixed(numeric.QtyPlaces),
		Amount:      amount.StringFixed(numeric.AmountPlaces),
		AvgRate:     numeric.AvgRate(line.EnteredQty, amount).StringFixed(numeric.AmountPlaces),
		Allocations: make([]AllocationDTO, 0, len(line.Allocations)),
	}
	for _, a := range line.Allocations {
		view.Allocations = append(view.Allocations, AllocationDTO{
			ID:            a.ID,
			ReceiptLineID: a.ReceiptLineID,
			Qty:           a.Qty.StringFixed(numeric.QtyPlaces),
			Rate:          a.Rate.StringFixed(numeric.AmountPlaces),
			Amount:        a.Amount.StringFixed(numeric.AmountPlaces),
		})
	}
	return view
}

func lineAmount(line models.ConsumptionLine) decimal.Decimal {
	amount := decimal.Zero
	for _, a := range line.Allocations {
		amount = amount.Add(a.Amount)
	}
	return amount
}
