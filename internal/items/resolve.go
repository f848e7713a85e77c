package items

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
)

type finder interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Item, error)
}

// Resolve loads every referenced item, failing with NOT_FOUND listing the ids
// that do not exist. Inactive items resolve normally.
func Resolve(ctx context.Context, repo finder, ids []uuid.UUID) (map[uuid.UUID]models.Item, error) {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	found, err := repo.FindByIDs(ctx, unique)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load items")
	}

	byID := make(map[uuid.UUID]models.Item, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}

	missing := []string{}
	for _, id := range unique {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more items not found").
			WithDetails(map[string]any{"missing_item_ids": missing})
	}
	return byID, nil
}
