package pgmodel

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun/driver/pgdriver"
)

// ErrorCode represents a database error classification
type ErrorCode string

const (
	CodeNoResult         ErrorCode = "NO_RESULT"
	CodeMultipleResults  ErrorCode = "MULTIPLE_RESULTS"
	CodeTypeMismatch     ErrorCode = "TYPE_MISMATCH"
	CodeInvalidQuery     ErrorCode = "INVALID_QUERY"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeForeignKey       ErrorCode = "FOREIGN_KEY"
	CodeCheckViolation   ErrorCode = "CHECK_VIOLATION"
	CodeNotNullViolation ErrorCode = "NOT_NULL"
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeSerialization    ErrorCode = "SERIALIZATION"
	CodeDeadlock         ErrorCode = "DEADLOCK"
	CodeUnknown          ErrorCode = "UNKNOWN"
)

// Sentinel errors for quick checks
var (
	ErrNoResult         = errors.New("pgmodel: no result found")
	ErrMultipleResults  = errors.New("pgmodel: unexpectedly found multiple results")
	ErrTypeMismatch     = errors.New("pgmodel: capability type mismatch")
	ErrInvalidQuery     = errors.New("pgmodel: invalid query")
	ErrConflict         = errors.New("pgmodel: optimistic locking conflict")
	ErrDuplicate        = errors.New("pgmodel: duplicate key violation")
	ErrForeignKey       = errors.New("pgmodel: foreign key violation")
	ErrCheckViolation   = errors.New("pgmodel: check constraint violation")
	ErrNotNullViolation = errors.New("pgmodel: not null violation")
	ErrConnection       = errors.New("pgmodel: connection failed")
	ErrTimeout          = errors.New("pgmodel: operation timeout")
	ErrSerialization    = errors.New("pgmodel: serialization failure")
	ErrDeadlock         = errors.New("pgmodel: deadlock detected")
)

// Error is a rich database error with context
type Error struct {
	Code       ErrorCode // Error classification
	Message    string    // Human-readable message
	Op         string    // Operation that failed (e.g., "Read.OneByID", "Connect")
	Table      string    // Table name if known
	Column     string    // Column name if known
	Constraint string    // Constraint name if applicable
	Detail     string    // Additional detail from PostgreSQL
	Hint       string    // Hint from PostgreSQL
	Query      string    // Query that failed (may be empty for security)
	Attempts   int       // Connection attempts made (CONNECTION_FAILED only)
	Rows       []Row     // Offending rows (MULTIPLE_RESULTS only)
	Cause      error     // Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("pgmodel: %s", e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("pgmodel.%s: %s", e.Op, e.Message)
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" (table: %s)", e.Table)
	}
	if e.Constraint != "" {
		msg += fmt.Sprintf(" (constraint: %s)", e.Constraint)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" (attempts: %d)", e.Attempts)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// sentinelByCode pairs each classification with its sentinel. CodeUnknown
// has no sentinel.
var sentinelByCode = map[ErrorCode]error{
	CodeNoResult:         ErrNoResult,
	CodeMultipleResults:  ErrMultipleResults,
	CodeTypeMismatch:     ErrTypeMismatch,
	CodeInvalidQuery:     ErrInvalidQuery,
	CodeConflict:         ErrConflict,
	CodeDuplicate:        ErrDuplicate,
	CodeForeignKey:       ErrForeignKey,
	CodeCheckViolation:   ErrCheckViolation,
	CodeNotNullViolation: ErrNotNullViolation,
	CodeConnectionFailed: ErrConnection,
	CodeTimeout:          ErrTimeout,
	CodeSerialization:    ErrSerialization,
	CodeDeadlock:         ErrDeadlock,
}

// Is maps the error's code to its sentinel for errors.Is matching
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinelByCode[e.Code]
	return ok && target == sentinel
}

// wrapError converts a raw error to a rich Error
func wrapError(err error, op string) error {
	if err == nil {
		return nil
	}

	// Already wrapped
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}

	// some drivers rebuild the no-rows error instead of wrapping it
	if errors.Is(err, sql.ErrNoRows) || err.Error() == "sql: no rows in result set" {
		return &Error{
			Code:    CodeNoResult,
			Message: "no result found",
			Op:      op,
			Cause:   err,
		}
	}

	// PostgreSQL errors, from either supported driver
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return wrapPgError(pgErr, op)
	}
	var drvErr pgdriver.Error
	if errors.As(err, &drvErr) {
		return wrapDriverError(drvErr, op)
	}

	// Generic wrapping
	return &Error{
		Code:    CodeUnknown,
		Message: err.Error(),
		Op:      op,
		Cause:   err,
	}
}

// mapSQLState classifies a PostgreSQL error code.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
func mapSQLState(code string) (ErrorCode, string) {
	switch code {
	case "23505": // unique_violation
		return CodeDuplicate, "duplicate key value violates unique constraint"
	case "23503": // foreign_key_violation
		return CodeForeignKey, "foreign key constraint violation"
	case "23502": // not_null_violation
		return CodeNotNullViolation, "null value in column violates not-null constraint"
	case "23514": // check_violation
		return CodeCheckViolation, "check constraint violation"
	case "40001": // serialization_failure
		return CodeSerialization, "serialization failure, retry transaction"
	case "40P01": // deadlock_detected
		return CodeDeadlock, "deadlock detected"
	case "57014": // query_canceled (timeout)
		return CodeTimeout, "query was cancelled due to timeout"
	case "08000", "08003", "08006": // connection errors
		return CodeConnectionFailed, "database connection failed"
	}
	return CodeUnknown, ""
}

// wrapPgError converts pgx PostgreSQL errors to rich errors
func wrapPgError(pgErr *pgconn.PgError, op string) *Error {
	e := &Error{
		Op:         op,
		Table:      pgErr.TableName,
		Column:     pgErr.ColumnName,
		Constraint: pgErr.ConstraintName,
		Detail:     pgErr.Detail,
		Hint:       pgErr.Hint,
		Cause:      pgErr,
	}
	e.Code, e.Message = mapSQLState(pgErr.Code)
	if e.Message == "" {
		e.Message = pgErr.Message
	}
	return e
}

// wrapDriverError converts pgdriver wire errors to rich errors
func wrapDriverError(drvErr pgdriver.Error, op string) *Error {
	e := &Error{
		Op:         op,
		Table:      drvErr.Field('t'),
		Column:     drvErr.Field('c'),
		Constraint: drvErr.Field('n'),
		Detail:     drvErr.Field('D'),
		Hint:       drvErr.Field('H'),
		Cause:      drvErr,
	}
	e.Code, e.Message = mapSQLState(drvErr.Field('C'))
	if e.Message == "" {
		e.Message = drvErr.Field('M')
	}
	return e
}

// sqlState extracts the PostgreSQL error code from either supported driver
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var drvErr pgdriver.Error
	if errors.As(err, &drvErr) {
		return drvErr.Field('C')
	}
	return ""
}

// isTransientConnError reports whether a connection attempt failed for a
// reason that may clear up on its own (server starting, network blip). Auth
// failures, missing databases and other definite rejections are not
// transient and must not be retried.
func isTransientConnError(err error) bool {
	if err == nil {
		return false
	}
	if code := sqlState(err); code != "" {
		// Class 08: connection exceptions. 57P03: cannot_connect_now,
		// reported while the server is starting up or shutting down.
		return strings.HasPrefix(code, "08") || code == "57P03"
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsNoResult reports whether err marks zero rows where exactly one was
// required
func IsNoResult(err error) bool {
	return errors.Is(err, ErrNoResult)
}

// IsMultipleResults reports whether err marks more than one row where exactly
// one was required
func IsMultipleResults(err error) bool {
	return errors.Is(err, ErrMultipleResults)
}

// IsTypeMismatch reports whether err is a capability replacement rejection
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// IsInvalidQuery reports whether err is a query composition rejection
func IsInvalidQuery(err error) bool {
	return errors.Is(err, ErrInvalidQuery)
}

// IsDuplicate reports whether err is a unique constraint violation
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsForeignKey reports whether err is a foreign key violation
func IsForeignKey(err error) bool {
	return errors.Is(err, ErrForeignKey)
}

// IsCheckViolation reports whether err is a check constraint violation
func IsCheckViolation(err error) bool {
	return errors.Is(err, ErrCheckViolation)
}

// IsNotNullViolation reports whether err is a not-null violation
func IsNotNullViolation(err error) bool {
	return errors.Is(err, ErrNotNullViolation)
}

// IsConnection reports whether err is a connection failure
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsTimeout reports whether err is a query timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsConflict reports whether err is an optimistic locking conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable reports whether retrying the operation may succeed
// (serialization failure or deadlock)
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSerialization) || errors.Is(err, ErrDeadlock)
}

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// GetErrorCode extracts the error code if err is a pgmodel error
func GetErrorCode(err error) (ErrorCode, bool) {
	if e, ok := asError(err); ok {
		return e.Code, true
	}
	return "", false
}

// GetConstraint extracts the constraint name if available
func GetConstraint(err error) (string, bool) {
	if e, ok := asError(err); ok && e.Constraint != "" {
		return e.Constraint, true
	}
	return "", false
}

// GetTable extracts the table name if available
func GetTable(err error) (string, bool) {
	if e, ok := asError(err); ok && e.Table != "" {
		return e.Table, true
	}
	return "", false
}

// GetColumn extracts the column name if available
func GetColumn(err error) (string, bool) {
	if e, ok := asError(err); ok && e.Column != "" {
		return e.Column, true
	}
	return "", false
}

// GetDetail extracts the error detail if available
func GetDetail(err error) (string, bool) {
	if e, ok := asError(err); ok && e.Detail != "" {
		return e.Detail, true
	}
	return "", false
}

// GetHint extracts the error hint if available
func GetHint(err error) (string, bool) {
	if e, ok := asError(err); ok && e.Hint != "" {
		return e.Hint, true
	}
	return "", false
}

// GetRows extracts the offending rows from a MULTIPLE_RESULTS error
func GetRows(err error) ([]Row, bool) {
	if e, ok := asError(err); ok && len(e.Rows) > 0 {
		return e.Rows, true
	}
	return nil, false
}

// QueryResult wraps a query result with error context for chainable error
// handling in custom capabilities.
type QueryResult[T any] struct {
	result T
	err    error
	op     string
}

// Err returns the wrapped error with enhanced context.
// If there was no error, it returns nil.
func (qr *QueryResult[T]) Err() error {
	return wrapError(qr.err, qr.op)
}

// Unwrap returns the result and the wrapped error.
// Use this when you need both the result and the error.
func (qr *QueryResult[T]) Unwrap() (T, error) {
	return qr.result, wrapError(qr.err, qr.op)
}

// Result returns only the result value.
// Use Err() to check for errors first.
func (qr *QueryResult[T]) Result() T {
	return qr.result
}

// HasError returns true if there was an error.
func (qr *QueryResult[T]) HasError() bool {
	return qr.err != nil
}

// WithErr wraps a result and error with operation context for enhanced error
// handling. Custom capabilities use it to tag their own operations:
//
//	func (r AllReader[T]) All(ctx context.Context) ([]T, error) {
//	    rows, err := r.QueryRecords(ctx, pgmodel.NewQuery(`SELECT * FROM `+r.Table().String()+`;`))
//	    return pgmodel.WithErr(rows, err, "All").Unwrap()
//	}
func WithErr[T any](result T, err error, op string) *QueryResult[T] {
	return &QueryResult[T]{
		result: result,
		err:    err,
		op:     op,
	}
}

// WithErr1 is a convenience function for operations that return only an error.
func WithErr1(err error, op string) *QueryResult[struct{}] {
	return &QueryResult[struct{}]{
		result: struct{}{},
		err:    err,
		op:     op,
	}
}
