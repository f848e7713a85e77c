package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
)

type lineBody struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity string `json:"quantity" validate:"required,decimal"`
}

type consumptionBody struct {
	Period string     `json:"period" validate:"required,period_code"`
	Lines  []lineBody `json:"lines" validate:"required,min=1,dive"`
}

func TestDecodeJSONBody_ReportsFieldPaths(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"period":"2024-13","lines":[{"item_id":"0190c1d2-0000-7000-8000-000000000001","quantity":"1"},{"item_id":"x","quantity":"abc"}]}`,
	))

	var body consumptionBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be a period code YYYY-MM", details["period"])
	require.Equal(t, "must be a valid uuid", details["lines[1].item_id"])
	require.Equal(t, "must be a decimal number", details["lines[1].quantity"])
	require.NotContains(t, details, "lines[0].item_id")
}

func TestDecodeJSONBody_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"period":"2024-01","lines":[],"extra":1}`))
	var body consumptionBody
	require.True(t, pkgerrors.Is(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))
}

func TestQueryParsers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&include_void=true&item_id=nope&bad=yes", nil)

	limit, err := ParseQueryInt(req, "limit", 50, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 20, limit)

	includeVoid, err := ParseQueryBool(req, "include_void", false)
	require.NoError(t, err)
	require.True(t, includeVoid)

	_, err = ParseQueryBool(req, "bad", false)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = ParseQueryUUID(req, "item_id")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	missing, err := ParseQueryUUID(req, "other")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestParsePeriodCode(t *testing.T) {
	code, err := ParsePeriodCode(" 2024-02 ", "period")
	require.NoError(t, err)
	require.Equal(t, "2024-02", code)

	for _, raw := range []string{"", "2024-2", "2024-00", "24-01"} {
		_, err := ParsePeriodCode(raw, "period")
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), raw)
	}
}

func TestSanitizeOptional(t *testing.T) {
	blank := "   "
	require.Nil(t, SanitizeOptional(&blank, 10))
	long := "  supplier invoice 42  "
	require.Equal(t, "supplier i", *SanitizeOptional(&long, 10))
	require.Nil(t, SanitizeOptional(nil, 10))
}
