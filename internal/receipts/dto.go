package receipts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

// LineDTO is the API view of a received lot.
type LineDTO struct {
	ID           uuid.UUID `json:"id"`
	ItemID       uuid.UUID `json:"item_id"`
	Quantity     string    `json:"quantity"`
	Rate         string    `json:"rate"`
	Amount       string    `json:"amount"`
	RemainingQty string    `json:"remaining_qty"`
	LotNo        *string   `json:"lot_no,omitempty"`
}

// ReceiptDTO is the API view of a receipt.
type ReceiptDTO struct {
	ID          uuid.UUID  `json:"id"`
	PeriodID    uuid.UUID  `json:"period_id"`
	PeriodCode  string     `json:"period_code,omitempty"`
	RefNo       *string    `json:"ref_no,omitempty"`
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

// ReceiptList wraps a page of receipts plus the next page cursor.
type ReceiptList struct {
	Receipts   []ReceiptDTO `json:"receipts"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func NewReceiptDTO(r *models.Receipt) ReceiptDTO {
	dto := ReceiptDTO{
		ID:         r.ID,
		PeriodID:   r.PeriodID,
		RefNo:      r.RefNo,
		Notes:      r.Notes,
		IsVoid:     r.IsVoid,
		VoidReason: r.VoidReason,
		VoidedAt:   r.VoidedAt,
		VoidedBy:   r.VoidedBy,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
	}
	if r.Period != nil {
		dto.PeriodCode = r.Period.Code
	}
	total := decimal.Zero
	for _, line := range r.Lines {
		total = total.Add(line.Amount)
		dto.Lines = append(dto.Lines, LineDTO{
			ID:           line.ID,
			ItemID:       line.ItemID,
			Quantity:     line.Quantity.StringFixed(numeric.QtyPlaces),
			Rate:         line.Rate.StringFixed(numeric.AmountPlaces),
			Amount:       line.Amount.StringFixed(numeric.AmountPlaces),
			RemainingQty: line.RemainingQty.StringFixed(numeric.QtyPlaces),
			LotNo:        line.LotNo,
		})
	}
	dto.TotalAmount = total.StringFixed(numeric.AmountPlaces)
	return dto
}

func NewReceiptList(result *ListResult) ReceiptList {
	out := ReceiptList{Receipts: make([]ReceiptDTO, 0, len(result.Receipts)), NextCursor: result.NextCursor}
	for i := range result.Receipts {
		out.Receipts = append(out.Receipts, NewReceiptDTO(&result.Receipts[i]))
	}
	return out
}
