package pgmodel

import (
	"fmt"
)

// Slot names one of the four capability slots of a Model
type Slot string

const (
	SlotCreate Slot = "create"
	SlotRead   Slot = "read"
	SlotUpdate Slot = "update"
	SlotDelete Slot = "delete"
)

// Model binds an Executor, a table reference and a row constructor to four
// CRUD capability slots. The executor, table and constructor are fixed at
// construction; each slot is independently replaceable with any
// implementation of its capability interface, either by assigning the field
// directly (checked at compile time) or through Replace (checked at the
// point of replacement). The model holds no per-call state; every operation
// is reentrant.
//
// Usage:
//
//	users, err := pgmodel.NewModel[User](client, "users", nil)
//	if err != nil {
//	    return err
//	}
//	user, err := users.Read.OneByID(ctx, id)
//
// Extending one slot while keeping the defaults of the other three:
//
//	type userReader struct {
//	    pgmodel.Read[User]
//	}
//
//	func (r userReader) All(ctx context.Context) ([]User, error) {
//	    query := pgmodel.NewQuery("SELECT * FROM " + r.Table().String() + ";")
//	    return r.QueryRecords(ctx, query)
//	}
//
//	users.Read = userReader{pgmodel.NewRead[User](client, users.Table(), nil)}
type Model[T Record] struct {
	Create Creator[T]
	Read   Reader[T]
	Update Updater[T]
	Delete Deleter[T]

	table       TableRef
	executor    Executor
	constructor RowConstructor[T]
}

// NewModel builds a model for one logical table. The table name is validated
// and escaped once; a nil constructor selects the DecodeRecord reflection
// decoder. All four slots start as the default builder plus cardinality
// guard composition.
func NewModel[T Record](executor Executor, table string, constructor RowConstructor[T]) (*Model[T], error) {
	ref, err := NewTableRef(table)
	if err != nil {
		return nil, tagError(err, "NewModel", table)
	}

	return &Model[T]{
		Create:      NewCreate[T](executor, ref, constructor),
		Read:        NewRead[T](executor, ref, constructor),
		Update:      NewUpdate[T](executor, ref, constructor),
		Delete:      NewDelete[T](executor, ref, constructor),
		table:       ref,
		executor:    executor,
		constructor: constructor,
	}, nil
}

// Table returns the validated table reference shared by all four slots
func (m *Model[T]) Table() TableRef { return m.table }

// Executor returns the executor shared by all four slots
func (m *Model[T]) Executor() Executor { return m.executor }

// Constructor returns the bound row constructor, or nil if the model decodes
// through DecodeRecord
func (m *Model[T]) Constructor() RowConstructor[T] { return m.constructor }

// Replace swaps one capability slot for impl. The replacement must satisfy
// the slot's capability interface; anything else fails with TYPE_MISMATCH
// here, at the point of replacement, never at first use. Replacing one slot
// leaves the other three untouched.
func (m *Model[T]) Replace(slot Slot, impl any) error {
	switch slot {
	case SlotCreate:
		c, ok := impl.(Creator[T])
		if !ok {
			return replaceMismatch(slot, impl, m.table.Name())
		}
		m.Create = c
	case SlotRead:
		r, ok := impl.(Reader[T])
		if !ok {
			return replaceMismatch(slot, impl, m.table.Name())
		}
		m.Read = r
	case SlotUpdate:
		u, ok := impl.(Updater[T])
		if !ok {
			return replaceMismatch(slot, impl, m.table.Name())
		}
		m.Update = u
	case SlotDelete:
		d, ok := impl.(Deleter[T])
		if !ok {
			return replaceMismatch(slot, impl, m.table.Name())
		}
		m.Delete = d
	default:
		return &Error{
			Code:    CodeTypeMismatch,
			Message: fmt.Sprintf("unknown capability slot %q", slot),
			Op:      "Replace",
			Table:   m.table.Name(),
		}
	}
	return nil
}

func replaceMismatch(slot Slot, impl any, table string) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("%T does not satisfy the %s capability", impl, slot),
		Op:      "Replace",
		Table:   table,
	}
}
