package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/messledger-backend/api/responses"
	"github.com/angelmondragon/messledger-backend/api/validators"
	"github.com/angelmondragon/messledger-backend/internal/balances"
	"github.com/angelmondragon/messledger-backend/internal/exports"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
)

// PeriodItemBalances serves the live per-item balance report for ?period=YYYY-MM.
func PeriodItemBalances(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}
		code, err := validators.ParsePeriodCode(r.URL.Query().Get("period"), "period")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.PeriodItemBalances(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// PeriodSnapshot serves the balances materialized when the period closed.
func PeriodSnapshot(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}
		code, err := validators.ParsePeriodCode(chi.URLParam(r, "code"), "code")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Snapshot(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func ReconcilePeriod(svc balances.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "report service unavailable"))
			return
		}
		code, err := validators.ParsePeriodCode(chi.URLParam(r, "code"), "code")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Reconcile(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// ExportPeriodWorkbook streams the period summary as an .xlsx attachment.
// The route parameter may carry the ".xlsx" suffix.
func ExportPeriodWorkbook(svc exports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "export service unavailable"))
			return
		}
		raw := strings.TrimSuffix(chi.URLParam(r, "code"), ".xlsx")
		code, err := validators.ParsePeriodCode(raw, "code")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		export, err := svc.PeriodWorkbook(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFile(w, export.ContentType, export.Filename, export.Data)
	}
}
