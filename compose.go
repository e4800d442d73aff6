package pgmodel

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TableRef is a validated, escaped table identifier. It is created once per
// Model and reused by all four capabilities.
type TableRef struct {
	name   string
	quoted string
}

// NewTableRef validates and escapes a table name
func NewTableRef(name string) (TableRef, error) {
	quoted, err := Ident(name)
	if err != nil {
		return TableRef{}, err
	}
	return TableRef{name: name, quoted: quoted}, nil
}

// Name returns the raw, unescaped table name
func (t TableRef) Name() string { return t.name }

// String returns the escaped form for embedding in SQL text
func (t TableRef) String() string { return t.quoted }

// IsZero reports whether the reference was never initialized
func (t TableRef) IsZero() bool { return t.quoted == "" }

// Ident escapes a SQL identifier by double-quoting it. Embedded double
// quotes are doubled. Empty names and names containing NUL are rejected.
func Ident(name string) (string, error) {
	if name == "" {
		return "", &Error{Code: CodeInvalidQuery, Message: "empty identifier"}
	}
	if strings.ContainsRune(name, 0) {
		return "", &Error{Code: CodeInvalidQuery, Message: "identifier contains NUL byte"}
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}

// Literal renders a Go value as a PostgreSQL literal. Strings are
// quote-escaped (switching to the E'' form when backslashes are present),
// byte slices become bytea hex, times are RFC 3339, and maps, slices and
// structs are JSON-encoded. Values that cannot be represented are rejected.
func Literal(v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}

	switch t := v.(type) {
	case string:
		return quoteString(t)
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.FormatInt(int64(t), 10), nil
	case int8:
		return strconv.FormatInt(int64(t), 10), nil
	case int16:
		return strconv.FormatInt(int64(t), 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return formatFloat(float64(t)), nil
	case float64:
		return formatFloat(t), nil
	case time.Time:
		return quoteString(t.Format(time.RFC3339Nano))
	case uuid.UUID:
		return quoteString(t.String())
	case json.RawMessage:
		if t == nil {
			return "NULL", nil
		}
		return quoteString(string(t))
	case []byte:
		if t == nil {
			return "NULL", nil
		}
		return `'\x` + hex.EncodeToString(t) + `'::bytea`, nil
	}

	if valuer, ok := v.(driver.Valuer); ok {
		resolved, err := valuer.Value()
		if err != nil {
			return "", &Error{
				Code:    CodeInvalidQuery,
				Message: fmt.Sprintf("cannot encode %T as literal", v),
				Cause:   err,
			}
		}
		return Literal(resolved)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", nil
		}
		return Literal(rv.Elem().Interface())
	case reflect.String:
		return quoteString(rv.String())
	case reflect.Bool:
		return Literal(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float()), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", &Error{
				Code:    CodeInvalidQuery,
				Message: fmt.Sprintf("cannot encode %T as literal", v),
				Cause:   err,
			}
		}
		return quoteString(string(encoded))
	}

	return "", &Error{
		Code:    CodeInvalidQuery,
		Message: fmt.Sprintf("cannot encode %T as literal", v),
	}
}

// quoteString escapes a string literal. The plain '' form is used unless the
// value contains backslashes, in which case the E'' form keeps the rendering
// independent of the server's standard_conforming_strings setting.
func quoteString(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", &Error{Code: CodeInvalidQuery, Message: "string literal contains NUL byte"}
	}
	if strings.Contains(s, `\`) {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `'`, `''`)
		return "E'" + escaped + "'", nil
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "'NaN'::float8"
	case math.IsInf(f, 1):
		return "'Infinity'::float8"
	case math.IsInf(f, -1):
		return "'-Infinity'::float8"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Query is a composed unit of SQL text plus optional named parameters.
// Parameters are written as :name in the text and bound with Bind; rendering
// replaces each placeholder with the bound value escaped as a literal, so no
// raw value ever reaches the SQL text unescaped.
type Query struct {
	text string
	args map[string]any
}

// NewQuery wraps raw SQL text. Without any Bind calls the text is passed to
// the driver untouched.
func NewQuery(text string) *Query {
	return &Query{text: text}
}

// Bind attaches a value for the :name placeholder. Binding the same name
// twice keeps the later value. Bound names with no matching placeholder are
// ignored at render time.
func (q *Query) Bind(name string, value any) *Query {
	if q.args == nil {
		q.args = make(map[string]any)
	}
	q.args[name] = value
	return q
}

// Text returns the raw SQL text with placeholders unsubstituted
func (q *Query) Text() string { return q.text }

func (q *Query) String() string { return q.text }

// Render produces the final SQL text. Placeholders are substituted only when
// at least one value is bound; a placeholder with no bound value is an error.
func (q *Query) Render() (string, error) {
	if len(q.args) == 0 {
		return q.text, nil
	}
	return renderNamed(q.text, q.args)
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isIdentStartByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// renderNamed substitutes :name placeholders, skipping string literals,
// E-string literals, quoted identifiers, comments and :: casts.
func renderNamed(text string, args map[string]any) (string, error) {
	var out strings.Builder
	out.Grow(len(text) + 64)

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'':
			// E'...' literals honor backslash escapes, plain '...' do not
			eString := i > 0 && (text[i-1] == 'E' || text[i-1] == 'e') &&
				(i < 2 || !isIdentByte(text[i-2]))
			j := i + 1
			for j < len(text) {
				if eString && text[j] == '\\' && j+1 < len(text) {
					j += 2
					continue
				}
				if text[j] == '\'' {
					if j+1 < len(text) && text[j+1] == '\'' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			out.WriteString(text[i:j])
			i = j
		case c == '"':
			j := i + 1
			for j < len(text) {
				if text[j] == '"' {
					if j+1 < len(text) && text[j+1] == '"' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			out.WriteString(text[i:j])
			i = j
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			j := i
			for j < len(text) && text[j] != '\n' {
				j++
			}
			out.WriteString(text[i:j])
			i = j
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			j := i + 2
			for j+1 < len(text) && !(text[j] == '*' && text[j+1] == '/') {
				j++
			}
			if j+1 < len(text) {
				j += 2
			} else {
				j = len(text)
			}
			out.WriteString(text[i:j])
			i = j
		case c == ':':
			if i+1 < len(text) && text[i+1] == ':' {
				out.WriteString("::")
				i += 2
				continue
			}
			if i+1 >= len(text) || !isIdentStartByte(text[i+1]) {
				out.WriteByte(c)
				i++
				continue
			}
			j := i + 1
			for j < len(text) && isIdentByte(text[j]) {
				j++
			}
			name := text[i+1 : j]
			value, ok := args[name]
			if !ok {
				return "", &Error{
					Code:    CodeInvalidQuery,
					Message: fmt.Sprintf("no value bound for parameter :%s", name),
					Query:   text,
				}
			}
			lit, err := Literal(value)
			if err != nil {
				return "", err
			}
			out.WriteString(lit)
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String(), nil
}
