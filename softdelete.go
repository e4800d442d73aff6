package pgmodel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SoftDeleteData adds the deletion mark used by the soft delete capability.
// Embed it next to RecordData in records whose table soft deletes:
//
//	type User struct {
//		pgmodel.RecordData
//		pgmodel.SoftDeleteData
//		Email string `db:"email"`
//	}
type SoftDeleteData struct {
	DeletedAt *time.Time `db:"deleted_at"`
}

// IsDeleted reports whether the record is marked deleted
func (d SoftDeleteData) IsDeleted() bool { return d.DeletedAt != nil }

// SoftDelete is a delete capability that marks rows deleted instead of
// removing them. It satisfies Deleter, so it can replace a model's Delete
// slot directly:
//
//	users.Delete = pgmodel.NewSoftDelete[User](client, users.Table(), nil)
//
// The table needs a nullable deleted_at timestamptz column; a non-NULL value
// means the row is deleted. The default Delete capability still removes rows
// permanently when a hard delete is needed.
type SoftDelete[T Record] struct {
	capability[T]
}

// NewSoftDelete builds the soft delete capability for a table
func NewSoftDelete[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) SoftDelete[T] {
	return SoftDelete[T]{newCapability(executor, table, constructor)}
}

// DeleteQuery builds the UPDATE statement that marks one row deleted at the
// given time without executing it
func (d SoftDelete[T]) DeleteQuery(id uuid.UUID, at time.Time) (*Query, error) {
	tsLit, err := Literal(at)
	if err != nil {
		return nil, tagError(err, "SoftDelete.OneByID", d.table.Name())
	}
	idLit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "SoftDelete.OneByID", d.table.Name())
	}
	text := fmt.Sprintf(
		`UPDATE %s SET "deleted_at" = %s WHERE id = %s RETURNING *;`,
		d.table, tsLit, idLit,
	)
	return NewQuery(text), nil
}

// OneByID marks the record with the given id deleted and returns it as
// stored after the mark
func (d SoftDelete[T]) OneByID(ctx context.Context, id uuid.UUID) (T, error) {
	return d.oneByIDAt(ctx, id, time.Now().UTC())
}

func (d SoftDelete[T]) oneByIDAt(ctx context.Context, id uuid.UUID, at time.Time) (T, error) {
	var zero T
	query, err := d.DeleteQuery(id, at)
	if err != nil {
		return zero, err
	}
	rows, err := d.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "SoftDelete.OneByID", d.table.Name())
	if err != nil {
		return zero, err
	}
	return d.decode(row)
}

// RestoreQuery builds the UPDATE statement that clears the deleted mark
// without executing it
func (d SoftDelete[T]) RestoreQuery(id uuid.UUID) (*Query, error) {
	idLit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "SoftDelete.Restore", d.table.Name())
	}
	text := fmt.Sprintf(
		`UPDATE %s SET "deleted_at" = NULL WHERE id = %s RETURNING *;`,
		d.table, idLit,
	)
	return NewQuery(text), nil
}

// Restore clears the deleted mark from the record with the given id and
// returns the restored record
func (d SoftDelete[T]) Restore(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	query, err := d.RestoreQuery(id)
	if err != nil {
		return zero, err
	}
	rows, err := d.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "SoftDelete.Restore", d.table.Name())
	if err != nil {
		return zero, err
	}
	return d.decode(row)
}

// SelectActiveQuery builds a SELECT over the rows not marked deleted.
// Pair it with QueryRecords in a custom reader.
func (d SoftDelete[T]) SelectActiveQuery() *Query {
	return NewQuery(fmt.Sprintf("SELECT * FROM %s WHERE deleted_at IS NULL;", d.table))
}

// SelectDeletedQuery builds a SELECT over the rows marked deleted
func (d SoftDelete[T]) SelectDeletedQuery() *Query {
	return NewQuery(fmt.Sprintf("SELECT * FROM %s WHERE deleted_at IS NOT NULL;", d.table))
}
