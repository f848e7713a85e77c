package balances

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

// Bucket is a quantity/amount pair with its average rate.
type Bucket struct {
	Qty     decimal.Decimal
	Amount  decimal.Decimal
	AvgRate decimal.Decimal
}

// NewBucket rounds qty and amount and derives the average rate.
func NewBucket(qty, amount decimal.Decimal) Bucket {
	qty = numeric.RoundQty(qty)
	amount = numeric.RoundAmount(amount)
	return Bucket{Qty: qty, Amount: amount, AvgRate: numeric.AvgRate(qty, amount)}
}

// Add returns the rounded sum of two buckets.
func (b Bucket) Add(other Bucket) Bucket {
	return NewBucket(b.Qty.Add(other.Qty), b.Amount.Add(other.Amount))
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"qty":      b.Qty.StringFixed(numeric.QtyPlaces),
		"amount":   b.Amount.StringFixed(numeric.AmountPlaces),
		"avg_rate": b.AvgRate.StringFixed(numeric.AmountPlaces),
	})
}

// Consumed splits consumption by the origin of the lots drawn.
type Consumed struct {
	FromOpening Bucket `json:"from_opening"`
	FromCurrent Bucket `json:"from_current"`
	Total       Bucket `json:"total"`
}

// ItemBalance is one item's position within a period.
type ItemBalance struct {
	ItemID     uuid.UUID       `json:"item_id"`
	ItemName   string          `json:"item_name"`
	UOM        string          `json:"uom"`
	Opening    Bucket          `json:"opening"`
	Received   Bucket          `json:"received"`
	Consumed   Consumed        `json:"consumed"`
	Closing    Bucket          `json:"closing"`
	TallyCheck decimal.Decimal `json:"-"`
}

func (b ItemBalance) MarshalJSON() ([]byte, error) {
	type alias ItemBalance
	return json.Marshal(struct {
		alias
		TallyCheck string `json:"tally_check"`
	}{
		alias:      alias(b),
		TallyCheck: b.TallyCheck.StringFixed(numeric.AmountPlaces),
	})
}

// newItemBalance derives closing, totals and the tally check from the four
// input buckets.
func newItemBalance(item models.Item, opening, received, fromOpening, fromCurrent Bucket) ItemBalance {
	closingQty := opening.Qty.Add(received.Qty).Sub(fromOpening.Qty).Sub(fromCurrent.Qty)
	closingAmt := opening.Amount.Add(received.Amount).Sub(fromOpening.Amount).Sub(fromCurrent.Amount)
	closing := NewBucket(closingQty, closingAmt)

	balance := ItemBalance{
		ItemID:   item.ID,
		ItemName: item.Name,
		UOM:      item.UOM,
		Opening:  opening,
		Received: received,
		Consumed: Consumed{
			FromOpening: fromOpening,
			FromCurrent: fromCurrent,
			Total:       fromOpening.Add(fromCurrent),
		},
		Closing: closing,
	}
	balance.TallyCheck = TallyCheck(balance)
	return balance
}

// TallyCheck returns (opening + received) - (consumed + closing) in amount
// terms. A reconciled balance yields zero.
func TallyCheck(b ItemBalance) decimal.Decimal {
	in := b.Opening.Amount.Add(b.Received.Amount)
	out := b.Consumed.FromOpening.Amount.Add(b.Consumed.FromCurrent.Amount).Add(b.Closing.Amount)
	return numeric.RoundAmount(in.Sub(out))
}

// ToSnapshot converts a computed balance into its materialized row.
func ToSnapshot(periodID uuid.UUID, b ItemBalance) models.PeriodItemBalance {
	return models.PeriodItemBalance{
		PeriodID:           periodID,
		ItemID:             b.ItemID,
		OpeningQty:         b.Opening.Qty,
		OpeningAmt:         b.Opening.Amount,
		ReceivedQty:        b.Received.Qty,
		ReceivedAmt:        b.Received.Amount,
		ConsFromOpeningQty: b.Consumed.FromOpening.Qty,
		ConsFromOpeningAmt: b.Consumed.FromOpening.Amount,
		ConsFromCurrentQty: b.Consumed.FromCurrent.Qty,
		ConsFromCurrentAmt: b.Consumed.FromCurrent.Amount,
		ClosingQty:         b.Closing.Qty,
		ClosingAmt:         b.Closing.Amount,
	}
}

// FromSnapshot rebuilds a balance view from a materialized row.
func FromSnapshot(row models.PeriodItemBalance, item models.Item) ItemBalance {
	fromOpening := NewBucket(row.ConsFromOpeningQty, row.ConsFromOpeningAmt)
	fromCurrent := NewBucket(row.ConsFromCurrentQty, row.ConsFromCurrentAmt)
	balance := ItemBalance{
		ItemID:   row.ItemID,
		ItemName: item.Name,
		UOM:      item.UOM,
		Opening:  NewBucket(row.OpeningQty, row.OpeningAmt),
		Received: NewBucket(row.ReceivedQty, row.ReceivedAmt),
		Consumed: Consumed{
			FromOpening: fromOpening,
			FromCurrent: fromCurrent,
			Total:       fromOpening.Add(fromCurrent),
		},
		Closing: NewBucket(row.ClosingQty, row.ClosingAmt),
	}
	balance.TallyCheck = TallyCheck(balance)
	return balance
}
