package pgmodel

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BatchSize is the default chunk size for bulk operations
const BatchSize = 100

// BulkCreate is a create capability that also inserts many records in one
// statement per chunk. It satisfies Creator, so it can replace a model's
// Create slot directly:
//
//	users.Create = pgmodel.NewBulkCreate[User](client, users.Table(), nil)
type BulkCreate[T Record] struct {
	Create[T]
}

// NewBulkCreate builds the bulk create capability for a table
func NewBulkCreate[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) BulkCreate[T] {
	return BulkCreate[T]{NewCreate[T](executor, table, constructor)}
}

// InsertManyQuery builds the multi-row INSERT statement for the given records
// without executing it. Every record must produce the same column list; rows
// follow slice order.
func (c BulkCreate[T]) InsertManyQuery(items []T) (*Query, error) {
	if len(items) == 0 {
		return nil, &Error{
			Code:    CodeInvalidQuery,
			Message: "no records to insert",
			Op:      "BulkCreate.Many",
			Table:   c.table.Name(),
		}
	}

	var columns []string
	tuples := make([]string, len(items))
	for i, item := range items {
		fields, err := recordFields(item)
		if err != nil {
			return nil, tagError(err, "BulkCreate.Many", c.table.Name())
		}
		if len(fields) == 0 {
			return nil, &Error{
				Code:    CodeInvalidQuery,
				Message: "record has no fields",
				Op:      "BulkCreate.Many",
				Table:   c.table.Name(),
			}
		}

		idents := make([]string, len(fields))
		values := make([]string, len(fields))
		for j, f := range fields {
			ident, err := Ident(f.column)
			if err != nil {
				return nil, tagError(err, "BulkCreate.Many", c.table.Name())
			}
			lit, err := Literal(f.value)
			if err != nil {
				return nil, tagError(err, "BulkCreate.Many", c.table.Name())
			}
			idents[j] = ident
			values[j] = lit
		}

		row := strings.Join(idents, ",")
		if columns == nil {
			columns = idents
		} else if row != strings.Join(columns, ",") {
			return nil, &Error{
				Code:    CodeInvalidQuery,
				Message: fmt.Sprintf("record %d has columns (%s), want (%s)", i, row, strings.Join(columns, ",")),
				Op:      "BulkCreate.Many",
				Table:   c.table.Name(),
			}
		}
		tuples[i] = "(" + strings.Join(values, ",") + ")"
	}

	text := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s RETURNING *;",
		c.table, strings.Join(columns, ","), strings.Join(tuples, ","),
	)
	return NewQuery(text), nil
}

// Many inserts the records in chunks of batchSize and returns the stored rows
// decoded back into records, in insertion order. A batchSize of zero or less
// falls back to BatchSize. When a chunk fails, the records already inserted
// are returned alongside the error.
func (c BulkCreate[T]) Many(ctx context.Context, items []T, batchSize int) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = BatchSize
	}

	created := make([]T, 0, len(items))
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}

		query, err := c.InsertManyQuery(items[i:end])
		if err != nil {
			return created, err
		}
		records, err := c.QueryRecords(ctx, query)
		if err != nil {
			return created, err
		}
		created = append(created, records...)
	}
	return created, nil
}

// BulkDelete is a delete capability that also removes many records in one
// statement per chunk. It satisfies Deleter, so it can replace a model's
// Delete slot directly.
type BulkDelete[T Record] struct {
	Delete[T]
}

// NewBulkDelete builds the bulk delete capability for a table
func NewBulkDelete[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) BulkDelete[T] {
	return BulkDelete[T]{NewDelete[T](executor, table, constructor)}
}

// DeleteManyQuery builds the multi-id DELETE statement without executing it
func (d BulkDelete[T]) DeleteManyQuery(ids []uuid.UUID) (*Query, error) {
	if len(ids) == 0 {
		return nil, &Error{
			Code:    CodeInvalidQuery,
			Message: "no ids to delete",
			Op:      "BulkDelete.ManyByID",
			Table:   d.table.Name(),
		}
	}

	lits := make([]string, len(ids))
	for i, id := range ids {
		lit, err := Literal(id)
		if err != nil {
			return nil, tagError(err, "BulkDelete.ManyByID", d.table.Name())
		}
		lits[i] = lit
	}

	text := fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (%s) RETURNING *;",
		d.table, strings.Join(lits, ","),
	)
	return NewQuery(text), nil
}

// ManyByID deletes the records with the given ids in chunks of batchSize and
// returns the rows as they existed immediately before deletion. Ids that
// match no row are skipped, not reported. When a chunk fails, the records
// already deleted are returned alongside the error.
func (d BulkDelete[T]) ManyByID(ctx context.Context, ids []uuid.UUID, batchSize int) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = BatchSize
	}

	deleted := make([]T, 0, len(ids))
	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		query, err := d.DeleteManyQuery(ids[i:end])
		if err != nil {
			return deleted, err
		}
		records, err := d.QueryRecords(ctx, query)
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, records...)
	}
	return deleted, nil
}

// Count returns the number of rows in a table
func Count(ctx context.Context, executor Executor, table TableRef) (int64, error) {
	query := NewQuery(fmt.Sprintf("SELECT count(*) AS count FROM %s;", table))
	rows, err := executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return 0, err
	}
	row, err := exactlyOne(rows, "Count", table.Name())
	if err != nil {
		return 0, err
	}
	count, err := row.Int64("count")
	if err != nil {
		return 0, tagError(err, "Count", table.Name())
	}
	return count, nil
}

// Exists reports whether any row has the given value in the given column
func Exists(ctx context.Context, executor Executor, table TableRef, column string, value any) (bool, error) {
	ident, err := Ident(column)
	if err != nil {
		return false, tagError(err, "Exists", table.Name())
	}
	lit, err := Literal(value)
	if err != nil {
		return false, tagError(err, "Exists", table.Name())
	}

	query := NewQuery(fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = %s) AS "exists";`,
		table, ident, lit,
	))
	rows, err := executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return false, err
	}
	row, err := exactlyOne(rows, "Exists", table.Name())
	if err != nil {
		return false, err
	}
	exists, err := row.Bool("exists")
	if err != nil {
		return false, tagError(err, "Exists", table.Name())
	}
	return exists, nil
}
