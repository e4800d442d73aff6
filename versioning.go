package pgmodel

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// VersionedData adds the version counter used by optimistic locking. Embed
// it next to RecordData in records whose table carries a version column:
//
//	type Account struct {
//		pgmodel.RecordData
//		pgmodel.VersionedData
//		Balance int64 `db:"balance"`
//	}
type VersionedData struct {
	Version int64 `db:"version"`
}

// VersionedUpdate is an update capability with optimistic locking on top of
// the plain update. It satisfies Updater, so it can replace a model's Update
// slot directly, and its checked operation only succeeds when the stored
// version still matches the caller's:
//
//	accounts.Update = pgmodel.NewVersionedUpdate[Account](client, accounts.Table(), nil)
//
// Every checked update increments the version column, so a concurrent writer
// holding the old version fails with a CONFLICT error instead of silently
// overwriting.
type VersionedUpdate[T Record] struct {
	Update[T]
}

// NewVersionedUpdate builds the optimistic locking update capability for a table
func NewVersionedUpdate[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) VersionedUpdate[T] {
	return VersionedUpdate[T]{NewUpdate[T](executor, table, constructor)}
}

// CheckedQuery builds the version-guarded UPDATE statement without executing
// it. SET fragments follow change set insertion order, with the version
// increment appended last.
func (u VersionedUpdate[T]) CheckedQuery(id uuid.UUID, version int64, changes *ChangeSet) (*Query, error) {
	if changes == nil || changes.Len() == 0 {
		return nil, &Error{
			Code:    CodeInvalidQuery,
			Message: "empty change set",
			Op:      "VersionedUpdate.CheckedOneByID",
			Table:   u.table.Name(),
		}
	}

	fragments := make([]string, 0, changes.Len()+1)
	var buildErr error
	changes.Each(func(column string, value any) {
		if buildErr != nil {
			return
		}
		ident, err := Ident(column)
		if err != nil {
			buildErr = tagError(err, "VersionedUpdate.CheckedOneByID", u.table.Name())
			return
		}
		lit, err := Literal(value)
		if err != nil {
			buildErr = tagError(err, "VersionedUpdate.CheckedOneByID", u.table.Name())
			return
		}
		fragments = append(fragments, fmt.Sprintf("%s = %s", ident, lit))
	})
	if buildErr != nil {
		return nil, buildErr
	}
	fragments = append(fragments, `"version" = "version" + 1`)

	idLit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "VersionedUpdate.CheckedOneByID", u.table.Name())
	}
	versionLit, err := Literal(version)
	if err != nil {
		return nil, tagError(err, "VersionedUpdate.CheckedOneByID", u.table.Name())
	}
	text := fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = %s AND "version" = %s RETURNING *;`,
		u.table, strings.Join(fragments, ","), idLit, versionLit,
	)
	return NewQuery(text), nil
}

// CheckedOneByID applies the change set to the record with the given id only
// if its stored version still equals version, and returns the record as
// stored after the update. A record that was modified since the version was
// read matches zero rows and fails with a CONFLICT error.
func (u VersionedUpdate[T]) CheckedOneByID(ctx context.Context, id uuid.UUID, version int64, changes *ChangeSet) (T, error) {
	var zero T
	query, err := u.CheckedQuery(id, version, changes)
	if err != nil {
		return zero, err
	}
	rows, err := u.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, &Error{
			Code:    CodeConflict,
			Message: fmt.Sprintf("record was modified, version %d no longer current", version),
			Op:      "VersionedUpdate.CheckedOneByID",
			Table:   u.table.Name(),
			Cause:   ErrConflict,
		}
	}
	row, err := exactlyOne(rows, "VersionedUpdate.CheckedOneByID", u.table.Name())
	if err != nil {
		return zero, err
	}
	return u.decode(row)
}

// CheckVersionQuery builds the SELECT statement that reads one record's
// current version without executing it
func (u VersionedUpdate[T]) CheckVersionQuery(id uuid.UUID) (*Query, error) {
	lit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "VersionedUpdate.CheckVersion", u.table.Name())
	}
	text := fmt.Sprintf(`SELECT "version" FROM %s WHERE id = %s;`, u.table, lit)
	return NewQuery(text), nil
}

// CheckVersion verifies that the stored version of the record with the given
// id still equals expected. A mismatch fails with a CONFLICT error; a missing
// record fails with NO_RESULT.
func (u VersionedUpdate[T]) CheckVersion(ctx context.Context, id uuid.UUID, expected int64) error {
	query, err := u.CheckVersionQuery(id)
	if err != nil {
		return err
	}
	rows, err := u.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return err
	}
	row, err := exactlyOne(rows, "VersionedUpdate.CheckVersion", u.table.Name())
	if err != nil {
		return err
	}
	current, err := row.Int64("version")
	if err != nil {
		return tagError(err, "VersionedUpdate.CheckVersion", u.table.Name())
	}
	if current != expected {
		return &Error{
			Code:    CodeConflict,
			Message: fmt.Sprintf("version mismatch, expected %d but record is at %d", expected, current),
			Op:      "VersionedUpdate.CheckVersion",
			Table:   u.table.Name(),
			Cause:   ErrConflict,
		}
	}
	return nil
}

// RetryOnConflict runs fn until it succeeds, fails with a non-conflict error,
// or exhausts maxRetries attempts. fn should reload the record to pick up the
// current version before retrying the update:
//
//	err := pgmodel.RetryOnConflict(ctx, 3, func() error {
//		account, err := accounts.Read.OneByID(ctx, id)
//		if err != nil {
//			return err
//		}
//		changes := pgmodel.NewChangeSet().Set("balance", account.Balance+100)
//		_, err = update.CheckedOneByID(ctx, id, account.Version, changes)
//		return err
//	})
func RetryOnConflict(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
