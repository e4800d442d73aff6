package pgmodel

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is the constraint for entities managed by a Model. RecordID returns
// the mandatory unique identifier; the identity invariant is that at most one
// row per table carries a given id.
type Record interface {
	RecordID() uuid.UUID
}

// RecordData provides the mandatory identifier field for records.
// Embed it in your record structs.
//
// Usage:
//
//	type User struct {
//	    pgmodel.RecordData
//	    Email string `db:"email"`
//	    Name  string `db:"name"`
//	}
type RecordData struct {
	ID uuid.UUID `db:"id"`
}

// RecordID returns the record's unique identifier.
func (r RecordData) RecordID() uuid.UUID { return r.ID }

// TimestampedData adds creation and update times. Embed it next to
// RecordData and call Touch before writing:
//
//	user.Touch()
//	created, err := users.Create.One(ctx, user)
type TimestampedData struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Touch stamps the update time, setting the creation time first when it is
// still unset
func (d *TimestampedData) Touch() {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
}

// Row is an ordered column→value mapping as returned by the Executor.
// Column order matches the result set. A Row is owned by the caller once
// returned; the zero value is an empty row.
type Row struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewRow returns an empty row
func NewRow() Row {
	return Row{m: orderedmap.New[string, any]()}
}

// Set appends or replaces a column value, returning the updated row
func (r Row) Set(column string, value any) Row {
	if r.m == nil {
		r.m = orderedmap.New[string, any]()
	}
	r.m.Set(column, value)
	return r
}

// Get returns the raw value for a column
func (r Row) Get(column string) (any, bool) {
	if r.m == nil {
		return nil, false
	}
	return r.m.Get(column)
}

// Len returns the number of columns
func (r Row) Len() int {
	if r.m == nil {
		return 0
	}
	return r.m.Len()
}

// Columns returns the column names in result order
func (r Row) Columns() []string {
	if r.m == nil {
		return nil
	}
	cols := make([]string, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		cols = append(cols, pair.Key)
	}
	return cols
}

// Each calls fn for every column in result order
func (r Row) Each(fn func(column string, value any)) {
	if r.m == nil {
		return
	}
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

func (r Row) String() string {
	var b strings.Builder
	b.WriteString("row{")
	first := true
	r.Each(func(column string, value any) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s=%v", column, value)
	})
	b.WriteString("}")
	return b.String()
}

func (r Row) get(column string) (any, error) {
	v, ok := r.Get(column)
	if !ok {
		return nil, &Error{Code: CodeUnknown, Message: fmt.Sprintf("row has no column %q", column)}
	}
	return v, nil
}

// Text returns a column as a string
func (r Row) Text(column string) (string, error) {
	v, err := r.get(column)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case nil:
		return "", nil
	}
	return fmt.Sprintf("%v", v), nil
}

// Int64 returns a column as an int64
func (r Row) Int64(column string) (int64, error) {
	v, err := r.get(column)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case int64:
		return t, nil
	case []byte:
		return strconv.ParseInt(string(t), 10, 64)
	case string:
		return strconv.ParseInt(t, 10, 64)
	}
	return 0, decodeError(column, v, "int64")
}

// Float64 returns a column as a float64
func (r Row) Float64(column string) (float64, error) {
	v, err := r.get(column)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case []byte:
		return strconv.ParseFloat(string(t), 64)
	case string:
		return strconv.ParseFloat(t, 64)
	}
	return 0, decodeError(column, v, "float64")
}

// Bool returns a column as a bool
func (r Row) Bool(column string) (bool, error) {
	v, err := r.get(column)
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case []byte:
		return parsePgBool(string(t))
	case string:
		return parsePgBool(t)
	}
	return false, decodeError(column, v, "bool")
}

// Time returns a column as a time.Time
func (r Row) Time(column string) (time.Time, error) {
	v, err := r.get(column)
	if err != nil {
		return time.Time{}, err
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return parsePgTime(string(t))
	case string:
		return parsePgTime(t)
	}
	return time.Time{}, decodeError(column, v, "time.Time")
}

// UUID returns a column as a UUID
func (r Row) UUID(column string) (uuid.UUID, error) {
	v, err := r.get(column)
	if err != nil {
		return uuid.Nil, err
	}
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case string:
		return uuid.Parse(t)
	case []byte:
		if len(t) == 16 {
			return uuid.FromBytes(t)
		}
		return uuid.ParseBytes(t)
	}
	return uuid.Nil, decodeError(column, v, "uuid.UUID")
}

// Bytes returns a column as a byte slice
func (r Row) Bytes(column string) ([]byte, error) {
	v, err := r.get(column)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	case nil:
		return nil, nil
	}
	return nil, decodeError(column, v, "[]byte")
}

// JSON unmarshals a column into dest
func (r Row) JSON(column string, dest any) error {
	v, err := r.get(column)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case []byte:
		return json.Unmarshal(t, dest)
	case string:
		return json.Unmarshal([]byte(t), dest)
	case json.RawMessage:
		return json.Unmarshal(t, dest)
	}
	return decodeError(column, v, "json")
}

// ChangeSet is an ordered column→value mapping consumed by Update. Iteration
// order determines the order of SET fragments; it has no semantic effect on
// the result.
type ChangeSet struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewChangeSet returns an empty change set
func NewChangeSet() *ChangeSet {
	return &ChangeSet{m: orderedmap.New[string, any]()}
}

// Set records a new value for a column. Chainable; setting the same column
// twice keeps its original position with the later value.
func (c *ChangeSet) Set(column string, value any) *ChangeSet {
	c.m.Set(column, value)
	return c
}

// Get returns the pending value for a column
func (c *ChangeSet) Get(column string) (any, bool) {
	return c.m.Get(column)
}

// Len returns the number of pending changes
func (c *ChangeSet) Len() int {
	return c.m.Len()
}

// Columns returns the changed column names in insertion order
func (c *ChangeSet) Columns() []string {
	cols := make([]string, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		cols = append(cols, pair.Key)
	}
	return cols
}

// Each calls fn for every change in insertion order
func (c *ChangeSet) Each(fn func(column string, value any)) {
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// RowConstructor converts a result row into a typed record. Models built
// with a nil constructor fall back to DecodeRecord.
type RowConstructor[T any] func(Row) (T, error)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// columnName derives the column for a struct field: the db tag if present,
// otherwise the snake_case field name.
func columnName(sf reflect.StructField) string {
	tag := sf.Tag.Get("db")
	name, _, _ := strings.Cut(tag, ",")
	if name != "" {
		return name
	}
	return snakeCase(sf.Name)
}

// walkFields visits exported struct fields in declaration order, flattening
// untagged embedded structs the way encoding/json does: embedded structs of
// unexported type still contribute their exported fields. time.Time and
// uuid.UUID embeds are treated as plain columns.
func walkFields(rv reflect.Value, fn func(column string, fv reflect.Value) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" && !sf.Anonymous {
			continue
		}
		tag := sf.Tag.Get("db")
		if tag == "-" {
			continue
		}
		fv := rv.Field(i)
		if sf.Anonymous && tag == "" {
			ft := sf.Type
			ev := fv
			if ft.Kind() == reflect.Pointer {
				if ev.IsNil() {
					if !ev.CanSet() {
						continue
					}
					ev.Set(reflect.New(ft.Elem()))
				}
				ev = ev.Elem()
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && ft != timeType && ft != uuidType {
				if err := walkFields(ev, fn); err != nil {
					return err
				}
				continue
			}
		}
		if sf.PkgPath != "" {
			continue
		}
		if err := fn(columnName(sf), fv); err != nil {
			return err
		}
	}
	return nil
}

type fieldValue struct {
	column string
	value  any
}

// recordFields extracts every column of a record in declared field order
func recordFields(item any) ([]fieldValue, error) {
	rv := reflect.ValueOf(item)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, &Error{Code: CodeInvalidQuery, Message: "record is nil"}
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, &Error{
			Code:    CodeInvalidQuery,
			Message: fmt.Sprintf("record must be a struct, got %T", item),
		}
	}
	var fields []fieldValue
	err := walkFields(rv, func(column string, fv reflect.Value) error {
		fields = append(fields, fieldValue{column: column, value: fv.Interface()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// DecodeRecord builds a T from a result row using the same column naming
// rules as the query builders: db tag first, snake_case field name otherwise.
// Columns absent from the row leave the field at its zero value.
func DecodeRecord[T any](row Row) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	if rv.Kind() != reflect.Struct {
		return out, &Error{
			Code:    CodeUnknown,
			Message: fmt.Sprintf("record must be a struct, got %T", out),
		}
	}
	err := walkFields(rv, func(column string, fv reflect.Value) error {
		value, ok := row.Get(column)
		if !ok || value == nil {
			return nil
		}
		return assignValue(fv, column, value)
	})
	return out, err
}

// assignValue stores a driver value into a struct field, converting between
// the driver's narrow type set and the field's type.
func assignValue(fv reflect.Value, column string, value any) error {
	ft := fv.Type()
	vv := reflect.ValueOf(value)

	if vv.Type().AssignableTo(ft) {
		if b, ok := value.([]byte); ok {
			fv.SetBytes(append([]byte(nil), b...))
			return nil
		}
		fv.Set(vv)
		return nil
	}

	switch ft {
	case uuidType:
		id, err := uuidFromValue(value)
		if err != nil {
			return decodeError(column, value, ft.String())
		}
		fv.Set(reflect.ValueOf(id))
		return nil
	case timeType:
		s, ok := stringFromValue(value)
		if !ok {
			return decodeError(column, value, ft.String())
		}
		t, err := parsePgTime(s)
		if err != nil {
			return decodeError(column, value, ft.String())
		}
		fv.Set(reflect.ValueOf(t))
		return nil
	}

	switch ft.Kind() {
	case reflect.Pointer:
		elem := reflect.New(ft.Elem())
		if err := assignValue(elem.Elem(), column, value); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	case reflect.String:
		s, ok := stringFromValue(value)
		if !ok {
			return decodeError(column, value, ft.String())
		}
		fv.SetString(s)
		return nil
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			fv.SetBool(b)
			return nil
		}
		s, ok := stringFromValue(value)
		if !ok {
			return decodeError(column, value, ft.String())
		}
		b, err := parsePgBool(s)
		if err != nil {
			return decodeError(column, value, ft.String())
		}
		fv.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch t := value.(type) {
		case int64:
			fv.SetInt(t)
			return nil
		case float64:
			fv.SetInt(int64(t))
			return nil
		}
		if s, ok := stringFromValue(value); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				fv.SetInt(n)
				return nil
			}
		}
		return decodeError(column, value, ft.String())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch t := value.(type) {
		case int64:
			if t >= 0 {
				fv.SetUint(uint64(t))
				return nil
			}
		}
		if s, ok := stringFromValue(value); ok {
			n, err := strconv.ParseUint(s, 10, 64)
			if err == nil {
				fv.SetUint(n)
				return nil
			}
		}
		return decodeError(column, value, ft.String())
	case reflect.Float32, reflect.Float64:
		switch t := value.(type) {
		case float64:
			fv.SetFloat(t)
			return nil
		case int64:
			fv.SetFloat(float64(t))
			return nil
		}
		if s, ok := stringFromValue(value); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err == nil {
				fv.SetFloat(f)
				return nil
			}
		}
		return decodeError(column, value, ft.String())
	case reflect.Slice, reflect.Map, reflect.Struct, reflect.Array:
		if s, ok := stringFromValue(value); ok {
			if err := json.Unmarshal([]byte(s), fv.Addr().Interface()); err == nil {
				return nil
			}
		}
		return decodeError(column, value, ft.String())
	}

	return decodeError(column, value, ft.String())
}

func stringFromValue(value any) (string, bool) {
	switch t := value.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	}
	return "", false
}

func uuidFromValue(value any) (uuid.UUID, error) {
	switch t := value.(type) {
	case uuid.UUID:
		return t, nil
	case string:
		return uuid.Parse(t)
	case []byte:
		if len(t) == 16 {
			return uuid.FromBytes(t)
		}
		return uuid.ParseBytes(t)
	}
	return uuid.Nil, fmt.Errorf("unsupported uuid source %T", value)
}

func parsePgBool(s string) (bool, error) {
	switch s {
	case "t", "T":
		return true, nil
	case "f", "F":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// parsePgTime accepts both RFC 3339 and the space-separated forms PostgreSQL
// emits for timestamp and timestamptz columns.
func parsePgTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func decodeError(column string, value any, want string) *Error {
	return &Error{
		Code:    CodeUnknown,
		Message: fmt.Sprintf("cannot decode column %q (%T) into %s", column, value, want),
	}
}
