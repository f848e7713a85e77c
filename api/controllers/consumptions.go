package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/messledger-backend/api/responses"
	"github.com/angelmondragon/messledger-backend/api/validators"
	"github.com/angelmondragon/messledger-backend/internal/consumptions"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

type consumptionLineRequest struct {
	ItemID   string      `json:"item_id" validate:"required,uuid"`
	Quantity json.Number `json:"quantity" validate:"required,decimal"`
}

type createConsumptionRequest struct {
	Period string                   `json:"period" validate:"required,period_code"`
	Notes  *string                  `json:"notes,omitempty"`
	Lines  []consumptionLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (req createConsumptionRequest) toInput() (consumptions.CreateInput, error) {
	input := consumptions.CreateInput{
		PeriodCode: req.Period,
		Notes:      validators.SanitizeOptional(req.Notes, maxNotesLen),
		Lines:      make([]consumptions.LineInput, 0, len(req.Lines)),
	}
	details := map[string]string{}
	for i, line := range req.Lines {
		itemID, err := uuid.Parse(line.ItemID)
		if err != nil {
			details[fmt.Sprintf("lines[%d].item_id", i)] = "must be a valid uuid"
		}
		qty, err := numeric.ParseQty(line.Quantity.String())
		if err != nil {
			details[fmt.Sprintf("lines[%d].quantity", i)] = err.Error()
		}
		input.Lines = append(input.Lines, consumptions.LineInput{
			ItemID:   itemID,
			Quantity: qty,
		})
	}
	if len(details) > 0 {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return input, nil
}

func ListConsumptions(svc consumptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "consumption service unavailable"))
			return
		}
		q, err := parseListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), consumptions.ListFilter{
			PeriodCode:   q.PeriodCode,
			ItemID:       q.ItemID,
			IncludeLines: q.IncludeLines,
			IncludeVoid:  q.IncludeVoid,
			Page:         q.Page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, consumptions.NewConsumptionList(result))
	}
}

func GetConsumption(svc consumptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "consumption service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		consumption, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, consumptions.NewConsumptionDTO(consumption))
	}
}

// CreateConsumption draws stock FIFO across lots. A shortfall on any line
// rejects the whole request with INSUFFICIENT_STOCK.
func CreateConsumption(svc consumptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "consumption service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createConsumptionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		consumption, err := svc.Create(r.Context(), input, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, consumptions.NewConsumptionDTO(consumption))
	}
}

func VoidConsumption(svc consumptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "consumption service unavailable"))
			return
		}
		id, reason, actor, err := voidArgs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		consumption, err := svc.Void(r.Context(), id, reason, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, consumptions.NewConsumptionDTO(consumption))
	}
}
