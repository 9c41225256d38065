package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
	cursorPrefix    = "offset:"
)

// Page is one offset-paginated slice of query results.
type Page[T any] struct {
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	Count      int    `json:"count"`
	Total      int    `json:"total"`
	NextCursor string `json:"nextCursor,omitempty"`
	Results    []T    `json:"results"`
}

// NewPage assembles a page and computes its cursor.
func NewPage[T any](results []T, limit, offset, total int) Page[T] {
	if results == nil {
		results = []T{}
	}
	return Page[T]{
		Limit:      limit,
		Offset:     offset,
		Count:      len(results),
		Total:      total,
		NextCursor: NextCursor(limit, offset, total),
		Results:    results,
	}
}

// NextCursor returns "offset:<n>" while offset+limit < total, else "".
func NextCursor(limit, offset, total int) string {
	if offset+limit < total {
		return fmt.Sprintf("%s%d", cursorPrefix, offset+limit)
	}
	return ""
}

// ParseCursor reads an "offset:<n>" cursor. An empty cursor is offset 0.
func ParseCursor(cursor string) (int, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0, nil
	}
	if !strings.HasPrefix(cursor, cursorPrefix) {
		return 0, NewValidation("cursor", "cursor must look like offset:<n>")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(cursor, cursorPrefix))
	if err != nil || n < 0 {
		return 0, NewValidation("cursor", "cursor offset must be a non-negative integer")
	}
	return n, nil
}

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
