package pgmodel

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DefaultPageSize is the page size used when the caller requests none
const DefaultPageSize = 20

// MaxPageSize caps the page size a caller may request
const MaxPageSize = 100

// ClampPageSize normalizes a requested page size into [1, MaxPageSize],
// substituting DefaultPageSize for zero or negative requests.
func ClampPageSize(size int) int {
	if size < 1 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// PageInfo contains pagination metadata.
type PageInfo struct {
	HasNextPage     bool   `json:"has_next_page"`
	HasPreviousPage bool   `json:"has_previous_page"`
	StartCursor     string `json:"start_cursor,omitempty"`
	EndCursor       string `json:"end_cursor,omitempty"`
}

// Page is a paginated result produced by a custom reader capability.
type Page[T any] struct {
	Items    []T      `json:"items"`
	PageInfo PageInfo `json:"page_info"`
}

// Cursor is the decoded form of an opaque page token: the last seen id plus,
// optionally, the sort value it was ordered under.
type Cursor struct {
	ID        string `json:"id"`
	SortValue string `json:"sv,omitempty"`
}

// EncodeCursor packs an id and sort value into an opaque base64 token
func EncodeCursor(id string, sortValue string) string {
	data, _ := json.Marshal(Cursor{ID: id, SortValue: sortValue})
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor unpacks a token produced by EncodeCursor. An empty token
// decodes to nil, meaning the first page.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("pgmodel: cursor is not valid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("pgmodel: cursor payload is not valid JSON: %w", err)
	}
	return &c, nil
}

// KeysetQuery builds a keyset-paginated SELECT ordered by id, for use by
// custom reader capabilities. A zero afterID starts from the beginning. The
// limit is clamped and one extra row is requested so TrimPage can detect a
// following page.
//
// Usage:
//
//	query, err := pgmodel.KeysetQuery(r.Table(), lastSeen, 20)
//	items, err := r.QueryRecords(ctx, query)
//	page := pgmodel.NewPage(items, 20, func(u User) string {
//	    return pgmodel.EncodeCursor(u.ID.String(), "")
//	})
func KeysetQuery(table TableRef, afterID uuid.UUID, limit int) (*Query, error) {
	if table.IsZero() {
		return nil, &Error{Code: CodeInvalidQuery, Message: "zero table reference", Op: "KeysetQuery"}
	}
	limit = ClampPageSize(limit)

	if afterID == uuid.Nil {
		return NewQuery(fmt.Sprintf(
			"SELECT * FROM %s ORDER BY id ASC LIMIT %d;", table, limit+1,
		)), nil
	}

	lit, err := Literal(afterID)
	if err != nil {
		return nil, tagError(err, "KeysetQuery", table.Name())
	}
	return NewQuery(fmt.Sprintf(
		"SELECT * FROM %s WHERE id > %s ORDER BY id ASC LIMIT %d;", table, lit, limit+1,
	)), nil
}

// TrimPage splits a limit+1 result into the page and a has-more flag.
func TrimPage[T any](items []T, limit int) ([]T, bool) {
	if limit > 0 && len(items) > limit {
		return items[:limit], true
	}
	return items, false
}

// NewPage assembles a cursor page from a limit+1 result set. cursorFn
// derives the opaque cursor for an item; a nil cursorFn leaves the cursors
// empty.
func NewPage[T any](items []T, limit int, cursorFn func(T) string) Page[T] {
	trimmed, hasMore := TrimPage(items, limit)

	info := PageInfo{HasNextPage: hasMore}
	if len(trimmed) > 0 && cursorFn != nil {
		info.StartCursor = cursorFn(trimmed[0])
		info.EndCursor = cursorFn(trimmed[len(trimmed)-1])
	}

	return Page[T]{Items: trimmed, PageInfo: info}
}
