package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodesMapToHTTPSemantics(t *testing.T) {
	cases := map[Code]struct {
		status    int
		retryable bool
		details   bool
	}{
		CodeValidation:    {status: http.StatusBadRequest, details: true},
		CodeUnauthorized:  {status: http.StatusUnauthorized},
		CodeForbidden:     {status: http.StatusForbidden},
		CodeNotFound:      {status: http.StatusNotFound},
		CodeConflict:      {status: http.StatusConflict},
		CodeStateConflict: {status: http.StatusUnprocessableEntity, details: true},
		CodeSoldOut:       {status: http.StatusConflict, details: true},
		CodeIdempotency:   {status: http.StatusConflict, details: true},
		CodeRateLimit:     {status: http.StatusTooManyRequests},
		CodeInternal:      {status: http.StatusInternalServerError, retryable: true},
		CodeDependency:    {status: http.StatusServiceUnavailable, retryable: true, details: true},
	}
	for code, want := range cases {
		meta := MetadataFor(code)
		assert.Equal(t, want.status, meta.HTTPStatus, code)
		assert.Equal(t, want.retryable, meta.Retryable, code)
		assert.Equal(t, want.details, meta.DetailsAllowed, code)
		assert.NotEmpty(t, meta.PublicMessage, code)
	}
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_UNKNOWN").HTTPStatus)
}

func TestWrapKeepsCauseAndCode(t *testing.T) {
	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeDependency, cause, "reserve stock")

	require.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeDependency, wrapped.Code())
	assert.Equal(t, "DEPENDENCY_ERROR: reserve stock", wrapped.Error())
	assert.Nil(t, Wrap(CodeInternal, nil, "no cause").Unwrap())
}

func TestWithDetailsOnFreshError(t *testing.T) {
	shortages := []map[string]any{{"ticket_type": "early-bird", "available": 2}}
	err := New(CodeSoldOut, "Only 2 Early Bird left").WithDetails(shortages)
	assert.Equal(t, shortages, err.Details())

	var missing *Error
	assert.Nil(t, missing.WithDetails("x"))
	assert.Equal(t, CodeInternal, missing.Code())
	assert.Empty(t, missing.Error())
}

func TestCodeLookupThroughWrapping(t *testing.T) {
	outer := fmt.Errorf("submit paynow: %w", New(CodeSoldOut, "Only 2 Early Bird left"))

	assert.True(t, IsCode(outer, CodeSoldOut))
	assert.False(t, IsCode(outer, CodeConflict))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal), "untyped errors carry no code")
	require.NotNil(t, As(outer))
	assert.Nil(t, As(nil))
}

func TestPublicMessageOnlyExposesCustomerFacingText(t *testing.T) {
	assert.Equal(t, "Only 2 Early Bird left", New(CodeSoldOut, "Only 2 Early Bird left").PublicMessage())
	assert.Equal(t, "internal server error",
		Wrap(CodeInternal, stdErrors.New("dial tcp 10.0.0.3:5432"), "insert order").PublicMessage())
	assert.Equal(t, "dependency unavailable", New(CodeDependency, "smtp relay refused").PublicMessage())
	assert.Equal(t, "resource not found", New(CodeNotFound, "").PublicMessage())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(stdErrors.New("connection reset")), "untyped errors are treated as internal")
	assert.True(t, IsRetryable(fmt.Errorf("dispatch: %w", New(CodeDependency, "smtp down"))))
	assert.False(t, IsRetryable(Newf(CodeValidation, "invalid email %q", "nope")))
}

func TestDumpExtractsDriverDetails(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		driver string
		state  string
		constr string
	}{
		{
			name:   "pgx",
			err:    &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key", TableName: "orders", Message: "duplicate key"},
			driver: "pgx", state: "23505", constr: "orders_order_number_key",
		},
		{
			name:   "pq",
			err:    &pq.Error{Code: "40001", Message: "could not serialize access"},
			driver: "pq", state: "40001",
		},
		{
			name:   "sqlite",
			err:    sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
			driver: "sqlite3", state: fmt.Sprint(int(sqlite3.ErrConstraintUnique)),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dump := Dump(Wrap(CodeConflict, fmt.Errorf("insert: %w", tc.err), "create order"))
			assert.Equal(t, CodeConflict, dump.Code)
			assert.Equal(t, tc.driver, dump.Driver)
			assert.Equal(t, tc.state, dump.SQLState)
			assert.Equal(t, tc.constr, dump.Constraint)
			assert.GreaterOrEqual(t, len(dump.Chain), 3)
			assert.Equal(t, tc.driver, dump.Fields()["db_driver"])
		})
	}
}

func TestDumpFieldsOmitEmptyDriverColumns(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))

	fields := Dump(fmt.Errorf("create order: %w", New(CodeConflict, "duplicate order number"))).Fields()
	assert.NotContains(t, fields, "db_sql_state")
	assert.NotContains(t, fields, "db_driver")
	assert.Equal(t, CodeConflict, fields["error_code"])
}
