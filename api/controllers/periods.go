package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/messledger-backend/api/responses"
	"github.com/angelmondragon/messledger-backend/api/validators"
	"github.com/angelmondragon/messledger-backend/internal/periods"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
)

type createPeriodRequest struct {
	Code string `json:"code" validate:"required,period_code"`
}

func ListPeriods(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "period service unavailable"))
			return
		}
		rows, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, periods.NewPeriodDTOs(rows))
	}
}

// CurrentPeriod returns the single OPEN period.
func CurrentPeriod(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "period service unavailable"))
			return
		}
		period, err := svc.Current(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, periods.NewPeriodDTO(period))
	}
}

func GetPeriod(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "period service unavailable"))
			return
		}
		code, err := validators.ParsePeriodCode(chi.URLParam(r, "code"), "code")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := svc.Get(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, periods.NewPeriodDTO(period))
	}
}

func CreatePeriod(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "period service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createPeriodRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := svc.Create(r.Context(), req.Code, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, periods.NewPeriodDTO(period))
	}
}

// ClosePeriod closes an OPEN period and returns the balances it materialized.
func ClosePeriod(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "period service unavailable"))
			return
		}
		code, actor, err := periodTransitionArgs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Close(r.Context(), code, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, periods.NewCloseResponse(result))
	}
}

func ReopenPeriod(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return periodTransition(svc, logg, func(ctx context.Context, code string, actor uuid.UUID) (*models.Period, error) {
		return svc.Reopen(ctx, code, actor)
	})
}

func LockPeriod(svc periods.Service, logg *logger.Logger) http.HandlerFunc {
	return periodTransition(svc, logg, func(ctx context.Context, code string, actor uuid.UUID) (*models.Period, error) {
		return svc.Lock(ctx, code, actor)
	})
}

type transitionFunc func(ctx context.Context, code string, actor uuid.UUID) (*models.Period, error)

func periodTransition(svc periods.Service, logg *logger.Logger, apply transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "period service unavailable"))
			return
		}
		code, actor, err := periodTransitionArgs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := apply(r.Context(), code, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, periods.NewPeriodDTO(period))
	}
}

func periodTransitionArgs(r *http.Request) (string, uuid.UUID, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return "", uuid.Nil, err
	}
	code, err := validators.ParsePeriodCode(chi.URLParam(r, "code"), "code")
	if err != nil {
		return "", uuid.Nil, err
	}
	return code, actor, nil
}
