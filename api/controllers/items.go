package controllers

import (
	"net/http"

	"github.com/angelmondragon/messledger-backend/api/responses"
	"github.com/angelmondragon/messledger-backend/api/validators"
	"github.com/angelmondragon/messledger-backend/internal/items"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
)

// ListItems returns items by name; ?include_inactive=true adds retired ones.
func ListItems(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "item service unavailable"))
			return
		}
		includeInactive, err := validators.ParseQueryBool(r, "include_inactive", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), includeInactive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items.NewItemDTOs(rows))
	}
}
