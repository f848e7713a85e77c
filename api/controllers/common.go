package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/messledger-backend/api/middleware"
	"github.com/angelmondragon/messledger-backend/api/validators"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/pagination"
)

const (
	maxNotesLen  = 1000
	maxRefLen    = 100
	maxReasonLen = 500
)

func actorFromRequest(r *http.Request) (uuid.UUID, error) {
	actor, ok := middleware.ActorIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "X-Actor-Id header required")
	}
	return actor, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}

type listQuery struct {
	PeriodCode   string
	ItemID       *uuid.UUID
	IncludeLines bool
	IncludeVoid  bool
	Page         pagination.Params
}

func parseListQuery(r *http.Request) (listQuery, error) {
	var q listQuery
	var err error
	if raw := r.URL.Query().Get("period"); raw != "" {
		if q.PeriodCode, err = validators.ParsePeriodCode(raw, "period"); err != nil {
			return q, err
		}
	}
	if q.ItemID, err = validators.ParseQueryUUID(r, "item_id"); err != nil {
		return q, err
	}
	if q.IncludeLines, err = validators.ParseQueryBool(r, "include_lines", true); err != nil {
		return q, err
	}
	if q.IncludeVoid, err = validators.ParseQueryBool(r, "include_void", false); err != nil {
		return q, err
	}
	q.Page, err = pageParams(r)
	return q, err
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
