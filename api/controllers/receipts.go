package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/messledger-backend/api/responses"
	"github.com/angelmondragon/messledger-backend/api/validators"
	"github.com/angelmondragon/messledger-backend/internal/receipts"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
	"github.com/angelmondragon/messledger-backend/pkg/numeric"
)

// Quantities and rates accept JSON numbers or numeric strings.
type receiptLineRequest struct {
	ItemID   string      `json:"item_id" validate:"required,uuid"`
	Quantity json.Number `json:"quantity" validate:"required,decimal"`
	Rate     json.Number `json:"rate" validate:"required,decimal"`
	LotNo    *string     `json:"lot_no,omitempty"`
}

type createReceiptRequest struct {
	Period string               `json:"period" validate:"required,period_code"`
	RefNo  *string              `json:"ref_no,omitempty"`
	Notes  *string              `json:"notes,omitempty"`
	Lines  []receiptLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (req createReceiptRequest) toInput() (receipts.CreateInput, error) {
	input := receipts.CreateInput{
		PeriodCode: req.Period,
		RefNo:      validators.SanitizeOptional(req.RefNo, maxRefLen),
		Notes:      validators.SanitizeOptional(req.Notes, maxNotesLen),
		Lines:      make([]receipts.LineInput, 0, len(req.Lines)),
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
		rate, err := numeric.ParseRate(line.Rate.String())
		if err != nil {
			details[fmt.Sprintf("lines[%d].rate", i)] = err.Error()
		}
		input.Lines = append(input.Lines, receipts.LineInput{
			ItemID:   itemID,
			Quantity: qty,
			Rate:     rate,
			LotNo:    validators.SanitizeOptional(line.LotNo, maxRefLen),
		})
	}
	if len(details) > 0 {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return input, nil
}

type updateReceiptRequest struct {
	RefNo *string `json:"ref_no,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

func ListReceipts(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}
		q, err := parseListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), receipts.ListFilter{
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
		responses.WriteSuccess(w, receipts.NewReceiptList(result))
	}
}

func GetReceipt(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipts.NewReceiptDTO(receipt))
	}
}

// CreateReceipt records incoming stock lots into an OPEN period.
func CreateReceipt(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createReceiptRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.Create(r.Context(), input, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipts.NewReceiptDTO(receipt))
	}
}

func UpdateReceipt(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateReceiptRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.UpdateHeader(r.Context(), id, receipts.HeaderInput{
			RefNo: req.RefNo,
			Notes: req.Notes,
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipts.NewReceiptDTO(receipt))
	}
}

// VoidReceipt voids a receipt none of whose lots have been drawn from.
func VoidReceipt(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}
		id, reason, actor, err := voidArgs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.Void(r.Context(), id, reason, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipts.NewReceiptDTO(receipt))
	}
}

func voidArgs(r *http.Request) (uuid.UUID, string, uuid.UUID, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return uuid.Nil, "", uuid.Nil, err
	}
	id, err := validators.ParseUUIDParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		return uuid.Nil, "", uuid.Nil, err
	}
	var req voidRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		return uuid.Nil, "", uuid.Nil, err
	}
	return id, validators.SanitizeString(req.Reason, maxReasonLen), actor, nil
}
