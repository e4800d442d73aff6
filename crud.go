package pgmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Creator is the create capability of a Model
type Creator[T Record] interface {
	One(ctx context.Context, item T) (T, error)
}

// Reader is the read capability of a Model
type Reader[T Record] interface {
	OneByID(ctx context.Context, id uuid.UUID) (T, error)
}

// Updater is the update capability of a Model
type Updater[T Record] interface {
	OneByID(ctx context.Context, id uuid.UUID, changes *ChangeSet) (T, error)
}

// Deleter is the delete capability of a Model
type Deleter[T Record] interface {
	OneByID(ctx context.Context, id uuid.UUID) (T, error)
}

// ExactlyOne enforces the singular-result contract: zero rows fails with
// NO_RESULT, two or more fail with MULTIPLE_RESULTS carrying the full
// offending sequence for diagnostics.
func ExactlyOne(rows []Row) (Row, error) {
	return exactlyOne(rows, "", "")
}

func exactlyOne(rows []Row, op, table string) (Row, error) {
	switch len(rows) {
	case 0:
		return Row{}, &Error{
			Code:    CodeNoResult,
			Message: "no result found",
			Op:      op,
			Table:   table,
		}
	case 1:
		return rows[0], nil
	}
	return Row{}, &Error{
		Code:    CodeMultipleResults,
		Message: fmt.Sprintf("expected exactly one result, got %d", len(rows)),
		Op:      op,
		Table:   table,
		Rows:    rows,
	}
}

// tagError fills in missing operation and table context on a composition
// error without disturbing already-tagged errors.
func tagError(err error, op, table string) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			e.Op = op
		}
		if e.Table == "" {
			e.Table = table
		}
		return e
	}
	return err
}

// capability carries what every CRUD capability needs: the executor to run
// queries through, the escaped table reference, and the row constructor.
// The default capabilities embed it, so custom capabilities that embed a
// default keep these methods.
type capability[T Record] struct {
	executor Executor
	table    TableRef
	decode   RowConstructor[T]
}

func newCapability[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) capability[T] {
	if constructor == nil {
		constructor = DecodeRecord[T]
	}
	return capability[T]{executor: executor, table: table, decode: constructor}
}

// Table returns the bound table reference
func (c capability[T]) Table() TableRef { return c.table }

// Executor returns the bound executor
func (c capability[T]) Executor() Executor { return c.executor }

// Decode converts a result row through the bound row constructor
func (c capability[T]) Decode(row Row) (T, error) { return c.decode(row) }

// QueryRecords executes a query and decodes every returned row. Custom
// capabilities build their plural operations on it.
func (c capability[T]) QueryRecords(ctx context.Context, query *Query) ([]T, error) {
	rows, err := c.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return nil, err
	}
	records := make([]T, 0, len(rows))
	for _, row := range rows {
		record, err := c.decode(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// QueryRecord executes a query that must return exactly one row and decodes
// it. Custom capabilities build their singular operations on it.
func (c capability[T]) QueryRecord(ctx context.Context, query *Query) (T, error) {
	var zero T
	rows, err := c.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "", c.table.Name())
	if err != nil {
		return zero, err
	}
	return c.decode(row)
}

// Create is the default create capability: a pure INSERT builder composed
// with the cardinality guard over the RETURNING row.
type Create[T Record] struct {
	capability[T]
}

// NewCreate builds the default create capability for a table
func NewCreate[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) Create[T] {
	return Create[T]{newCapability(executor, table, constructor)}
}

// InsertQuery builds the INSERT statement for one record without executing
// it. Columns follow the record's declared field order; every value is
// escaped as a literal.
func (c Create[T]) InsertQuery(item T) (*Query, error) {
	fields, err := recordFields(item)
	if err != nil {
		return nil, tagError(err, "Create.One", c.table.Name())
	}
	if len(fields) == 0 {
		return nil, &Error{
			Code:    CodeInvalidQuery,
			Message: "record has no fields",
			Op:      "Create.One",
			Table:   c.table.Name(),
		}
	}

	columns := make([]string, len(fields))
	values := make([]string, len(fields))
	for i, f := range fields {
		ident, err := Ident(f.column)
		if err != nil {
			return nil, tagError(err, "Create.One", c.table.Name())
		}
		lit, err := Literal(f.value)
		if err != nil {
			return nil, tagError(err, "Create.One", c.table.Name())
		}
		columns[i] = ident
		values[i] = lit
	}

	text := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *;",
		c.table, strings.Join(columns, ","), strings.Join(values, ","),
	)
	return NewQuery(text), nil
}

// One inserts a record and returns the stored row decoded back into a record
func (c Create[T]) One(ctx context.Context, item T) (T, error) {
	var zero T
	query, err := c.InsertQuery(item)
	if err != nil {
		return zero, err
	}
	rows, err := c.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "Create.One", c.table.Name())
	if err != nil {
		return zero, err
	}
	return c.decode(row)
}

// Read is the default read capability
type Read[T Record] struct {
	capability[T]
}

// NewRead builds the default read capability for a table
func NewRead[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) Read[T] {
	return Read[T]{newCapability(executor, table, constructor)}
}

// SelectByIDQuery builds the SELECT statement for one id without executing it
func (r Read[T]) SelectByIDQuery(id uuid.UUID) (*Query, error) {
	lit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "Read.OneByID", r.table.Name())
	}
	text := fmt.Sprintf("SELECT * FROM %s WHERE id = %s;", r.table, lit)
	return NewQuery(text), nil
}

// OneByID returns the single record with the given id
func (r Read[T]) OneByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	query, err := r.SelectByIDQuery(id)
	if err != nil {
		return zero, err
	}
	rows, err := r.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "Read.OneByID", r.table.Name())
	if err != nil {
		return zero, err
	}
	return r.decode(row)
}

// Update is the default update capability
type Update[T Record] struct {
	capability[T]
}

// NewUpdate builds the default update capability for a table
func NewUpdate[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) Update[T] {
	return Update[T]{newCapability(executor, table, constructor)}
}

// UpdateByIDQuery builds the UPDATE statement for one id without executing
// it. SET fragments follow change set insertion order.
func (u Update[T]) UpdateByIDQuery(id uuid.UUID, changes *ChangeSet) (*Query, error) {
	if changes == nil || changes.Len() == 0 {
		return nil, &Error{
			Code:    CodeInvalidQuery,
			Message: "empty change set",
			Op:      "Update.OneByID",
			Table:   u.table.Name(),
		}
	}

	fragments := make([]string, 0, changes.Len())
	var buildErr error
	changes.Each(func(column string, value any) {
		if buildErr != nil {
			return
		}
		ident, err := Ident(column)
		if err != nil {
			buildErr = tagError(err, "Update.OneByID", u.table.Name())
			return
		}
		lit, err := Literal(value)
		if err != nil {
			buildErr = tagError(err, "Update.OneByID", u.table.Name())
			return
		}
		fragments = append(fragments, fmt.Sprintf("%s = %s", ident, lit))
	})
	if buildErr != nil {
		return nil, buildErr
	}

	lit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "Update.OneByID", u.table.Name())
	}
	text := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = %s RETURNING *;",
		u.table, strings.Join(fragments, ","), lit,
	)
	return NewQuery(text), nil
}

// OneByID applies the change set to the single record with the given id and
// returns the record as stored after the update
func (u Update[T]) OneByID(ctx context.Context, id uuid.UUID, changes *ChangeSet) (T, error) {
	var zero T
	query, err := u.UpdateByIDQuery(id, changes)
	if err != nil {
		return zero, err
	}
	rows, err := u.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "Update.OneByID", u.table.Name())
	if err != nil {
		return zero, err
	}
	return u.decode(row)
}

// Delete is the default delete capability
type Delete[T Record] struct {
	capability[T]
}

// NewDelete builds the default delete capability for a table
func NewDelete[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) Delete[T] {
	return Delete[T]{newCapability(executor, table, constructor)}
}

// DeleteByIDQuery builds the DELETE statement for one id without executing it
func (d Delete[T]) DeleteByIDQuery(id uuid.UUID) (*Query, error) {
	lit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "Delete.OneByID", d.table.Name())
	}
	text := fmt.Sprintf("DELETE FROM %s WHERE id = %s RETURNING *;", d.table, lit)
	return NewQuery(text), nil
}

// OneByID deletes the single record with the given id and returns the record
// as it existed immediately before deletion
func (d Delete[T]) OneByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	query, err := d.DeleteByIDQuery(id)
	if err != nil {
		return zero, err
	}
	rows, err := d.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "Delete.OneByID", d.table.Name())
	if err != nil {
		return zero, err
	}
	return d.decode(row)
}
