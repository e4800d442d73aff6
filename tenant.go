package pgmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNoTenant is returned when an operation needs a tenant and the context
// carries none
var ErrNoTenant = errors.New("pgmodel: no tenant in context")

// TenantData adds the tenant column used by the tenant-scoped capabilities.
// Embed it next to RecordData in records of shared tables:
//
//	type Project struct {
//		pgmodel.RecordData
//		pgmodel.TenantData
//		Name string `db:"name"`
//	}
type TenantData struct {
	TenantID uuid.UUID `db:"tenant_id"`
}

// SetTenantID sets the tenant on the record
func (d *TenantData) SetTenantID(id uuid.UUID) { d.TenantID = id }

// Tenanted is implemented by records carrying a tenant column. TenantData
// provides it.
type Tenanted interface {
	SetTenantID(uuid.UUID)
}

type tenantKey struct{}

// WithTenant attaches a tenant to a context. The tenant-scoped capabilities
// read it back out on every operation.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the tenant attached with WithTenant
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	tenantID, ok := ctx.Value(tenantKey{}).(uuid.UUID)
	if !ok || tenantID == uuid.Nil {
		return uuid.Nil, false
	}
	return tenantID, true
}

// RequireTenant returns the tenant attached to the context, or ErrNoTenant.
// The scoped capabilities never fall back to an unscoped query when the
// tenant is missing; they fail with this error instead.
func RequireTenant(ctx context.Context) (uuid.UUID, error) {
	tenantID, ok := TenantFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrNoTenant
	}
	return tenantID, nil
}

// SetTenantID stamps the context's tenant onto a record, typically right
// before an insert:
//
//	project := Project{RecordData: pgmodel.RecordData{ID: uuid.New()}, Name: "api"}
//	if err := pgmodel.SetTenantID(ctx, &project); err != nil {
//		return err
//	}
//	created, err := projects.Create.One(ctx, project)
func SetTenantID(ctx context.Context, record Tenanted) error {
	tenantID, err := RequireTenant(ctx)
	if err != nil {
		return err
	}
	record.SetTenantID(tenantID)
	return nil
}

// TenantRead is a read capability scoped to the context's tenant. It
// satisfies Reader, so it can replace a model's Read slot directly; rows of
// other tenants behave as if they did not exist.
type TenantRead[T Record] struct {
	Read[T]
}

// NewTenantRead builds the tenant-scoped read capability for a table
func NewTenantRead[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) TenantRead[T] {
	return TenantRead[T]{NewRead[T](executor, table, constructor)}
}

// SelectByIDQuery builds the tenant-scoped SELECT statement for one id
// without executing it
func (r TenantRead[T]) SelectByIDQuery(tenantID, id uuid.UUID) (*Query, error) {
	idLit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "TenantRead.OneByID", r.table.Name())
	}
	tenantLit, err := Literal(tenantID)
	if err != nil {
		return nil, tagError(err, "TenantRead.OneByID", r.table.Name())
	}
	text := fmt.Sprintf(
		`SELECT * FROM %s WHERE id = %s AND "tenant_id" = %s;`,
		r.table, idLit, tenantLit,
	)
	return NewQuery(text), nil
}

// OneByID returns the single record with the given id belonging to the
// context's tenant
func (r TenantRead[T]) OneByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	tenantID, err := RequireTenant(ctx)
	if err != nil {
		return zero, err
	}
	query, err := r.SelectByIDQuery(tenantID, id)
	if err != nil {
		return zero, err
	}
	rows, err := r.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "TenantRead.OneByID", r.table.Name())
	if err != nil {
		return zero, err
	}
	return r.decode(row)
}

// AllQuery builds the SELECT statement over every row of one tenant without
// executing it
func (r TenantRead[T]) AllQuery(tenantID uuid.UUID) (*Query, error) {
	tenantLit, err := Literal(tenantID)
	if err != nil {
		return nil, tagError(err, "TenantRead.All", r.table.Name())
	}
	text := fmt.Sprintf(`SELECT * FROM %s WHERE "tenant_id" = %s;`, r.table, tenantLit)
	return NewQuery(text), nil
}

// All returns every record belonging to the context's tenant
func (r TenantRead[T]) All(ctx context.Context) ([]T, error) {
	tenantID, err := RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	query, err := r.AllQuery(tenantID)
	if err != nil {
		return nil, err
	}
	return r.QueryRecords(ctx, query)
}

// TenantUpdate is an update capability scoped to the context's tenant. It
// satisfies Updater, so it can replace a model's Update slot directly.
type TenantUpdate[T Record] struct {
	Update[T]
}

// NewTenantUpdate builds the tenant-scoped update capability for a table
func NewTenantUpdate[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) TenantUpdate[T] {
	return TenantUpdate[T]{NewUpdate[T](executor, table, constructor)}
}

// UpdateByIDQuery builds the tenant-scoped UPDATE statement for one id
// without executing it. SET fragments follow change set insertion order.
func (u TenantUpdate[T]) UpdateByIDQuery(tenantID, id uuid.UUID, changes *ChangeSet) (*Query, error) {
	if changes == nil || changes.Len() == 0 {
		return nil, &Error{
			Code:    CodeInvalidQuery,
			Message: "empty change set",
			Op:      "TenantUpdate.OneByID",
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
			buildErr = tagError(err, "TenantUpdate.OneByID", u.table.Name())
			return
		}
		lit, err := Literal(value)
		if err != nil {
			buildErr = tagError(err, "TenantUpdate.OneByID", u.table.Name())
			return
		}
		fragments = append(fragments, fmt.Sprintf("%s = %s", ident, lit))
	})
	if buildErr != nil {
		return nil, buildErr
	}

	idLit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "TenantUpdate.OneByID", u.table.Name())
	}
	tenantLit, err := Literal(tenantID)
	if err != nil {
		return nil, tagError(err, "TenantUpdate.OneByID", u.table.Name())
	}
	text := fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = %s AND "tenant_id" = %s RETURNING *;`,
		u.table, strings.Join(fragments, ","), idLit, tenantLit,
	)
	return NewQuery(text), nil
}

// OneByID applies the change set to the single record with the given id
// belonging to the context's tenant
func (u TenantUpdate[T]) OneByID(ctx context.Context, id uuid.UUID, changes *ChangeSet) (T, error) {
	var zero T
	tenantID, err := RequireTenant(ctx)
	if err != nil {
		return zero, err
	}
	query, err := u.UpdateByIDQuery(tenantID, id, changes)
	if err != nil {
		return zero, err
	}
	rows, err := u.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "TenantUpdate.OneByID", u.table.Name())
	if err != nil {
		return zero, err
	}
	return u.decode(row)
}

// TenantDelete is a delete capability scoped to the context's tenant. It
// satisfies Deleter, so it can replace a model's Delete slot directly.
type TenantDelete[T Record] struct {
	Delete[T]
}

// NewTenantDelete builds the tenant-scoped delete capability for a table
func NewTenantDelete[T Record](executor Executor, table TableRef, constructor RowConstructor[T]) TenantDelete[T] {
	return TenantDelete[T]{NewDelete[T](executor, table, constructor)}
}

// DeleteByIDQuery builds the tenant-scoped DELETE statement for one id
// without executing it
func (d TenantDelete[T]) DeleteByIDQuery(tenantID, id uuid.UUID) (*Query, error) {
	idLit, err := Literal(id)
	if err != nil {
		return nil, tagError(err, "TenantDelete.OneByID", d.table.Name())
	}
	tenantLit, err := Literal(tenantID)
	if err != nil {
		return nil, tagError(err, "TenantDelete.OneByID", d.table.Name())
	}
	text := fmt.Sprintf(
		`DELETE FROM %s WHERE id = %s AND "tenant_id" = %s RETURNING *;`,
		d.table, idLit, tenantLit,
	)
	return NewQuery(text), nil
}

// OneByID deletes the single record with the given id belonging to the
// context's tenant and returns it as it existed immediately before deletion
func (d TenantDelete[T]) OneByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	tenantID, err := RequireTenant(ctx)
	if err != nil {
		return zero, err
	}
	query, err := d.DeleteByIDQuery(tenantID, id)
	if err != nil {
		return zero, err
	}
	rows, err := d.executor.ExecuteAndReturn(ctx, query)
	if err != nil {
		return zero, err
	}
	row, err := exactlyOne(rows, "TenantDelete.OneByID", d.table.Name())
	if err != nil {
		return zero, err
	}
	return d.decode(row)
}
