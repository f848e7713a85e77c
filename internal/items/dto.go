package items

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
)

// ItemDTO is the API view of an item.
type ItemDTO struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	UOM      string    `json:"uom"`
	IsActive bool      `json:"is_active"`
}

func NewItemDTOs(rows []models.Item) []ItemDTO {
	out := make([]ItemDTO, 0, len(rows))
	for _, item := range rows {
		out = append(out, ItemDTO{ID: item.ID, Name: item.Name, UOM: item.UOM, IsActive: item.IsActive})
	}
	return out
}
