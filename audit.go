package pgmodel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of mutation an audit entry records
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

// AuditEntry describes one mutation. Old and new data carry the record as
// JSON where the operation makes it available; Metadata is free form and left
// empty by the capability decorators.
type AuditEntry struct {
	Action   AuditAction     `json:"action"`
	Table    string          `json:"table"`
	RecordID uuid.UUID       `json:"record_id"`
	OldData  json.RawMessage `json:"old_data,omitempty"`
	NewData  json.RawMessage `json:"new_data,omitempty"`
	Actor    string          `json:"actor,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	At       time.Time       `json:"at"`
}

// AuditHandler receives one entry per audited mutation. Implementations store
// the entry wherever the application keeps its trail; an error fails the
// operation that produced the entry, after the mutation itself already
// happened.
type AuditHandler func(ctx context.Context, entry *AuditEntry) error

type actorKey struct{}

// WithActor attaches the acting principal to a context. The audit decorators
// copy it into every entry they produce.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting principal attached with WithActor, or
// the empty string
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok {
		return actor
	}
	return ""
}

func newAuditEntry(ctx context.Context, action AuditAction, table string, id uuid.UUID) *AuditEntry {
	return &AuditEntry{
		Action:   action,
		Table:    table,
		RecordID: id,
		Actor:    ActorFromContext(ctx),
		At:       time.Now().UTC(),
	}
}

func marshalData(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

// AuditedCreate decorates any create capability with audit logging. It
// satisfies Creator, so it can replace a model's Create slot directly; the
// usual way is AuditModel, which wraps all three mutation slots at once.
type AuditedCreate[T Record] struct {
	inner   Creator[T]
	table   string
	handler AuditHandler
}

// NewAuditedCreate wraps a create capability with audit logging
func NewAuditedCreate[T Record](inner Creator[T], table TableRef, handler AuditHandler) AuditedCreate[T] {
	return AuditedCreate[T]{inner: inner, table: table.Name(), handler: handler}
}

// One inserts through the wrapped capability, then hands the stored record to
// the handler as the entry's new data. The insert is not rolled back when the
// handler fails; the stored record is returned alongside the handler's error.
func (a AuditedCreate[T]) One(ctx context.Context, item T) (T, error) {
	created, err := a.inner.One(ctx, item)
	if err != nil || a.handler == nil {
		return created, err
	}
	entry := newAuditEntry(ctx, AuditActionCreate, a.table, created.RecordID())
	entry.NewData = marshalData(created)
	return created, a.handler(ctx, entry)
}

// AuditedUpdate decorates any update capability with audit logging. When a
// read capability is supplied, the record is read before the update and
// recorded as the entry's old data.
type AuditedUpdate[T Record] struct {
	inner   Updater[T]
	before  Reader[T]
	table   string
	handler AuditHandler
}

// NewAuditedUpdate wraps an update capability with audit logging. before may
// be nil to skip old data.
func NewAuditedUpdate[T Record](inner Updater[T], before Reader[T], table TableRef, handler AuditHandler) AuditedUpdate[T] {
	return AuditedUpdate[T]{inner: inner, before: before, table: table.Name(), handler: handler}
}

// OneByID updates through the wrapped capability, then hands old and new data
// to the handler. A failed pre-update read leaves old data empty rather than
// failing the update.
func (a AuditedUpdate[T]) OneByID(ctx context.Context, id uuid.UUID, changes *ChangeSet) (T, error) {
	var old json.RawMessage
	if a.handler != nil && a.before != nil {
		if prev, err := a.before.OneByID(ctx, id); err == nil {
			old = marshalData(prev)
		}
	}
	updated, err := a.inner.OneByID(ctx, id, changes)
	if err != nil || a.handler == nil {
		return updated, err
	}
	entry := newAuditEntry(ctx, AuditActionUpdate, a.table, id)
	entry.OldData = old
	entry.NewData = marshalData(updated)
	return updated, a.handler(ctx, entry)
}

// AuditedDelete decorates any delete capability with audit logging. The row
// returned by the delete is recorded as the entry's old data.
type AuditedDelete[T Record] struct {
	inner   Deleter[T]
	table   string
	handler AuditHandler
}

// NewAuditedDelete wraps a delete capability with audit logging
func NewAuditedDelete[T Record](inner Deleter[T], table TableRef, handler AuditHandler) AuditedDelete[T] {
	return AuditedDelete[T]{inner: inner, table: table.Name(), handler: handler}
}

// OneByID deletes through the wrapped capability, then hands the removed
// record to the handler as the entry's old data
func (a AuditedDelete[T]) OneByID(ctx context.Context, id uuid.UUID) (T, error) {
	deleted, err := a.inner.OneByID(ctx, id)
	if err != nil || a.handler == nil {
		return deleted, err
	}
	entry := newAuditEntry(ctx, AuditActionDelete, a.table, id)
	entry.OldData = marshalData(deleted)
	return deleted, a.handler(ctx, entry)
}

// AuditModel wraps a model's three mutation slots with audit logging in
// place and returns the model. The read slot is left untouched and serves as
// the pre-update reader for old data:
//
//	users = pgmodel.AuditModel(users, handler)
//	ctx = pgmodel.WithActor(ctx, "svc-billing")
//	users.Update.OneByID(ctx, id, changes)
func AuditModel[T Record](m *Model[T], handler AuditHandler) *Model[T] {
	m.Create = NewAuditedCreate[T](m.Create, m.Table(), handler)
	m.Update = NewAuditedUpdate[T](m.Update, m.Read, m.Table(), handler)
	m.Delete = NewAuditedDelete[T](m.Delete, m.Table(), handler)
	return m
}

// AuditRecord is a storable form of AuditEntry for keeping the trail in a
// table of its own. The target table needs matching columns, with the JSON
// payloads as nullable jsonb.
type AuditRecord struct {
	RecordData
	Action   AuditAction     `db:"action"`
	Table    string          `db:"table_name"`
	Subject  uuid.UUID       `db:"record_id"`
	OldData  json.RawMessage `db:"old_data"`
	NewData  json.RawMessage `db:"new_data"`
	Actor    string          `db:"actor"`
	Metadata json.RawMessage `db:"metadata"`
	At       time.Time       `db:"at"`
}

// NewTableAuditHandler returns a handler that stores entries through a create
// capability, typically a model over the audit table:
//
//	trail, _ := pgmodel.NewModel[pgmodel.AuditRecord](client, "audit_log", nil)
//	users = pgmodel.AuditModel(users, pgmodel.NewTableAuditHandler(trail.Create))
func NewTableAuditHandler(create Creator[AuditRecord]) AuditHandler {
	return func(ctx context.Context, entry *AuditEntry) error {
		_, err := create.One(ctx, AuditRecord{
			RecordData: RecordData{ID: uuid.New()},
			Action:     entry.Action,
			Table:      entry.Table,
			Subject:    entry.RecordID,
			OldData:    entry.OldData,
			NewData:    entry.NewData,
			Actor:      entry.Actor,
			Metadata:   entry.Metadata,
			At:         entry.At,
		})
		return err
	}
}
