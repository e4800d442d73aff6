// Package hooks provides observability hooks for pgmodel
package hooks

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// QueryEvent describes one query execution. The client creates it before the
// query runs and fills Err in before AfterQuery fires.
type QueryEvent struct {
	Query     string    // final SQL text as sent to the driver
	StartTime time.Time // when execution began
	Err       error     // execution result, nil on success
}

// QueryHook observes query execution. BeforeQuery may derive a new context
// (for example to carry a span); AfterQuery receives the same event with Err
// populated.
type QueryHook interface {
	BeforeQuery(ctx context.Context, event *QueryEvent) context.Context
	AfterQuery(ctx context.Context, event *QueryEvent)
}

// maxStatementLength caps the SQL text attached to log records and spans
const maxStatementLength = 500

// Statement returns the query text capped to a length safe for log records
// and span attributes.
func (e *QueryEvent) Statement() string {
	if len(e.Query) > maxStatementLength {
		return e.Query[:maxStatementLength] + "..."
	}
	return e.Query
}

// Duration returns the time elapsed since the query started
func (e *QueryEvent) Duration() time.Duration {
	return time.Since(e.StartTime)
}

var sqlVerbs = map[string]struct{}{
	"select":   {},
	"insert":   {},
	"update":   {},
	"delete":   {},
	"create":   {},
	"drop":     {},
	"alter":    {},
	"truncate": {},
	"begin":    {},
	"commit":   {},
	"rollback": {},
}

// OperationType returns the lowercased leading SQL verb of a query, or
// "other" when the first word is not a recognized statement kind. Hooks use
// it as the operation label on metrics, spans, and log records.
func OperationType(query string) string {
	query = strings.TrimSpace(query)
	end := strings.IndexFunc(query, unicode.IsSpace)
	if end == -1 {
		end = len(query)
	}
	verb := strings.ToLower(strings.TrimSuffix(query[:end], ";"))
	if _, ok := sqlVerbs[verb]; ok {
		return verb
	}
	return "other"
}
