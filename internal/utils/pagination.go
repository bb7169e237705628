// Package utils holds the query-string and pagination helpers shared by the
// HTTP handlers.
package utils

import "strconv"

// PageParams bounds the page and page_size query values of a list endpoint.
type PageParams struct {
	DefaultSize int
	MaxSize     int
}

// Parse reads page and page_size. Missing or malformed values fall back to
// page 1 and DefaultSize; page_size is clamped to [1, MaxSize].
func (p PageParams) Parse(pageStr, sizeStr string) (page, size int) {
	page = max(AtoiDefault(pageStr, 1), 1)
	size = max(AtoiDefault(sizeStr, p.DefaultSize), 1)
	if p.MaxSize > 0 {
		size = min(size, p.MaxSize)
	}
	return page, size
}

// Window returns the [start, end) slice bounds of page over total items and
// the number of pages. A page past the end yields an empty window.
func Window(total, page, size int) (start, end, pages int) {
	if size <= 0 {
		return 0, 0, 0
	}
	pages = (total + size - 1) / size
	start = min(max(page-1, 0)*size, total)
	end = min(start+size, total)
	return start, end, pages
}

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty or
// not an integer.
//
//	n := utils.AtoiDefault("42", 0) // 42
//	n = utils.AtoiDefault("x", 5)   // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
