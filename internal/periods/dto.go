package periods

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/messledger-backend/internal/balances"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	"github.com/angelmondragon/messledger-backend/pkg/enums"
)

// PeriodDTO is the API view of a period.
type PeriodDTO struct {
	ID        uuid.UUID          `json:"id"`
	Code      string             `json:"code"`
	Year      int                `json:"year"`
	Month     int                `json:"month"`
	Status    enums.PeriodStatus `json:"status"`
	OpenedAt  *time.Time         `json:"opened_at,omitempty"`
	ClosedAt  *time.Time         `json:"closed_at,omitempty"`
	LockedAt  *time.Time         `json:"locked_at,omitempty"`
	CreatedBy *uuid.UUID         `json:"created_by,omitempty"`
	ClosedBy  *uuid.UUID         `json:"closed_by,omitempty"`
	LockedBy  *uuid.UUID         `json:"locked_by,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// CloseResponse is the API view of a close.
type CloseResponse struct {
	Period   PeriodDTO              `json:"period"`
	Balances []balances.ItemBalance `json:"balances"`
}

func NewPeriodDTO(p *models.Period) PeriodDTO {
	return PeriodDTO{
		ID:        p.ID,
		Code:      p.Code,
		Year:      p.Year,
		Month:     p.Month,
		Status:    p.Status,
		OpenedAt:  p.OpenedAt,
		ClosedAt:  p.ClosedAt,
		LockedAt:  p.LockedAt,
		CreatedBy: p.CreatedBy,
		ClosedBy:  p.ClosedBy,
		LockedBy:  p.LockedBy,
		CreatedAt: p.CreatedAt,
	}
}

func NewPeriodDTOs(rows []models.Period) []PeriodDTO {
	out := make([]PeriodDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewPeriodDTO(&rows[i]))
	}
	return out
}

func NewCloseResponse(result *CloseResult) CloseResponse {
	return CloseResponse{Period: NewPeriodDTO(result.Period), Balances: result.Balances}
}
