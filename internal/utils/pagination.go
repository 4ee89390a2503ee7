// Package utils holds query-string helpers shared by the HTTP handlers and
// the paginated service reads.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a decimal int, returning def when s is blank or
// not a number.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Default and maximum page sizes for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a normalized 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps raw values: page < 1 becomes 1, size <= 0 becomes
// DefaultPageSize and size > MaxPageSize becomes MaxPageSize.
func NewPage(page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: page, Size: size}
}

// Offset returns the row offset of p.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }
