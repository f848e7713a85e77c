package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeDependency, cause, "load lots")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDependency, err.Code())
	assert.Contains(t, err.Error(), "boom")
}

func TestAsFindsTypedErrorThroughWrapping(t *testing.T) {
	typed := New(CodeInsufficientStock, "insufficient stock").WithDetails(map[string]any{"item_id": "x"})
	wrapped := fmt.Errorf("create consumption: %w", typed)

	got := As(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeInsufficientStock, got.Code())
	assert.True(t, Is(wrapped, CodeInsufficientStock))
	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
	assert.False(t, Is(nil, CodeInternal))
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
	assert.False(t, meta.DetailsAllowed)

	assert.Equal(t, http.StatusUnprocessableEntity, MetadataFor(CodeInvalidState).HTTPStatus)
	assert.Equal(t, http.StatusConflict, MetadataFor(CodeInsufficientStock).HTTPStatus)
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_periods_single_open", TableName: "periods"}
	d := Dump(Wrap(CodeConflict, pgErr, "open period"))
	assert.Equal(t, "23505", d.PGCode)
	assert.Equal(t, "ux_periods_single_open", d.PGConstraint)
	assert.Equal(t, CodeConflict, d.Code)
	assert.Len(t, d.Chain, 2)

	pqErr := &pq.Error{Code: "23514", Constraint: "chk_receipt_lines_remaining", Table: "receipt_lines"}
	d = Dump(pqErr)
	assert.Equal(t, "23514", d.PGCode)
	assert.Equal(t, "receipt_lines", d.PGTable)
}
