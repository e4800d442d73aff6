package pgmodel

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type literalString string

type literalValuer struct {
	v driver.Value
}

func (lv literalValuer) Value() (driver.Value, error) { return lv.v, nil }

type failingValuer struct{}

func (failingValuer) Value() (driver.Value, error) { return nil, errors.New("no value") }

func TestIdent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "users", `"users"`},
		{"mixed case preserved", "UserAccounts", `"UserAccounts"`},
		{"embedded quote doubled", `we"ird`, `"we""ird"`},
		{"space", "user accounts", `"user accounts"`},
		{"keyword", "select", `"select"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Ident(tt.in)
			if err != nil {
				t.Fatalf("Ident failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIdent_Invalid(t *testing.T) {
	if _, err := Ident(""); !IsInvalidQuery(err) {
		t.Errorf("Expected invalid query error for empty identifier, got %v", err)
	}
	if _, err := Ident("a\x00b"); !IsInvalidQuery(err) {
		t.Errorf("Expected invalid query error for NUL identifier, got %v", err)
	}
}

func TestNewTableRef(t *testing.T) {
	ref, err := NewTableRef("users")
	if err != nil {
		t.Fatalf("NewTableRef failed: %v", err)
	}
	if ref.Name() != "users" {
		t.Errorf("Expected name 'users', got %s", ref.Name())
	}
	if ref.String() != `"users"` {
		t.Errorf("Expected escaped form '\"users\"', got %s", ref.String())
	}
	if ref.IsZero() {
		t.Error("Expected initialized ref not to be zero")
	}

	if _, err := NewTableRef(""); !IsInvalidQuery(err) {
		t.Errorf("Expected invalid query error, got %v", err)
	}

	var zero TableRef
	if !zero.IsZero() {
		t.Error("Expected zero ref to report IsZero")
	}
}

func TestLiteral(t *testing.T) {
	strPtr := "pointed"

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "hello", "'hello'"},
		{"empty string", "", "''"},
		{"string with quote", "it's", "'it''s'"},
		{"string with quotes", "it's a 'test'", "'it''s a ''test'''"},
		{"string with backslash", `a\b`, `E'a\\b'`},
		{"string with backslash and quote", `a\'b`, `E'a\\''b'`},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"int", 42, "42"},
		{"negative int", -7, "-7"},
		{"int64", int64(9007199254740993), "9007199254740993"},
		{"uint", uint(42), "42"},
		{"float", 1.5, "1.5"},
		{"whole float", float64(2), "2"},
		{"nan", math.NaN(), "'NaN'::float8"},
		{"positive infinity", math.Inf(1), "'Infinity'::float8"},
		{"negative infinity", math.Inf(-1), "'-Infinity'::float8"},
		{"nil", nil, "NULL"},
		{"bytes", []byte{0xde, 0xad, 0xbe, 0xef}, `'\xdeadbeef'::bytea`},
		{"nil bytes", []byte(nil), "NULL"},
		{"empty bytes", []byte{}, `'\x'::bytea`},
		{"json raw message", json.RawMessage(`{"a":1}`), `'{"a":1}'`},
		{"nil json raw message", json.RawMessage(nil), "NULL"},
		{"uuid", uuid.MustParse("6ecd8c99-4036-403d-bf84-cf8400f67836"), "'6ecd8c99-4036-403d-bf84-cf8400f67836'"},
		{"time", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "'2024-03-01T12:30:00Z'"},
		{"nil pointer", (*string)(nil), "NULL"},
		{"pointer", &strPtr, "'pointed'"},
		{"named string type", literalString("abc"), "'abc'"},
		{"valuer", literalValuer{v: "wrapped"}, "'wrapped'"},
		{"string slice as json", []string{"a", "b"}, `'["a","b"]'`},
		{"int slice as json", []int{1, 2, 3}, `'[1,2,3]'`},
		{"map as json", map[string]int{"a": 1}, `'{"a":1}'`},
		{"struct as json", struct {
			A int `json:"a"`
		}{A: 1}, `'{"a":1}'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Literal(tt.in)
			if err != nil {
				t.Fatalf("Literal failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLiteral_Invalid(t *testing.T) {
	if _, err := Literal("a\x00b"); !IsInvalidQuery(err) {
		t.Errorf("Expected invalid query error for NUL string, got %v", err)
	}
	if _, err := Literal(make(chan int)); !IsInvalidQuery(err) {
		t.Errorf("Expected invalid query error for channel, got %v", err)
	}
	if _, err := Literal(failingValuer{}); !IsInvalidQuery(err) {
		t.Errorf("Expected invalid query error for failing valuer, got %v", err)
	}
}

func TestQuery_RenderPassthrough(t *testing.T) {
	// without bound values the text goes to the driver untouched,
	// placeholder-looking tokens included
	text := "SELECT * FROM users WHERE name = :name;"
	got, err := NewQuery(text).Render()
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != text {
		t.Errorf("Expected passthrough %q, got %q", text, got)
	}
}

func TestQuery_RenderNamed(t *testing.T) {
	tests := []struct {
		name  string
		query *Query
		want  string
	}{
		{
			name:  "single parameter",
			query: NewQuery("SELECT * FROM users WHERE name = :name;").Bind("name", "alice"),
			want:  "SELECT * FROM users WHERE name = 'alice';",
		},
		{
			name: "two parameters",
			query: NewQuery("SELECT * FROM users WHERE name = :name AND age > :age;").
				Bind("name", "alice").
				Bind("age", 21),
			want: "SELECT * FROM users WHERE name = 'alice' AND age > 21;",
		},
		{
			name:  "repeated parameter",
			query: NewQuery("SELECT :a + :a;").Bind("a", 1),
			want:  "SELECT 1 + 1;",
		},
		{
			name:  "value is escaped",
			query: NewQuery("SELECT :v;").Bind("v", "it's"),
			want:  "SELECT 'it''s';",
		},
		{
			name:  "nil renders NULL",
			query: NewQuery("UPDATE users SET bio = :bio;").Bind("bio", nil),
			want:  "UPDATE users SET bio = NULL;",
		},
		{
			name:  "rebinding keeps the later value",
			query: NewQuery("SELECT :a;").Bind("a", 1).Bind("a", 2),
			want:  "SELECT 2;",
		},
		{
			name:  "unused binds are ignored",
			query: NewQuery("SELECT 1;").Bind("unused", "x"),
			want:  "SELECT 1;",
		},
		{
			name:  "string literal is skipped",
			query: NewQuery("SELECT ':skip' AS x, :real;").Bind("real", 5),
			want:  "SELECT ':skip' AS x, 5;",
		},
		{
			name:  "doubled quote inside literal",
			query: NewQuery("SELECT 'it''s :skip', :real;").Bind("real", 5),
			want:  "SELECT 'it''s :skip', 5;",
		},
		{
			name:  "escape string literal is skipped",
			query: NewQuery(`SELECT E'\':skip' AS x, :real;`).Bind("real", 5),
			want:  `SELECT E'\':skip' AS x, 5;`,
		},
		{
			name:  "quoted identifier is skipped",
			query: NewQuery(`SELECT ":skip", :real FROM t;`).Bind("real", 5),
			want:  `SELECT ":skip", 5 FROM t;`,
		},
		{
			name:  "cast stays a cast",
			query: NewQuery("SELECT :v::text, id::text FROM t;").Bind("v", "a"),
			want:  "SELECT 'a'::text, id::text FROM t;",
		},
		{
			name:  "line comment is skipped",
			query: NewQuery("SELECT :a -- :skip\n;").Bind("a", 1),
			want:  "SELECT 1 -- :skip\n;",
		},
		{
			name:  "block comment is skipped",
			query: NewQuery("/* :skip */ SELECT :a;").Bind("a", 1),
			want:  "/* :skip */ SELECT 1;",
		},
		{
			name:  "colon before non-identifier untouched",
			query: NewQuery("SELECT ARRAY[1,2,3][1:2], :a;").Bind("a", 1),
			want:  "SELECT ARRAY[1,2,3][1:2], 1;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query.Render()
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestQuery_RenderMissingParameter(t *testing.T) {
	query := NewQuery("SELECT * FROM users WHERE name = :name AND age > :age;").Bind("name", "alice")

	_, err := query.Render()
	if !IsInvalidQuery(err) {
		t.Fatalf("Expected invalid query error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no value bound for parameter :age") {
		t.Errorf("Expected missing parameter message, got %q", err.Error())
	}
}

func TestQuery_Text(t *testing.T) {
	query := NewQuery("SELECT :a;").Bind("a", 1)
	if query.Text() != "SELECT :a;" {
		t.Errorf("Expected raw text with placeholder, got %q", query.Text())
	}
}
