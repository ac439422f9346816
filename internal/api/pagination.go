package api

import (
	"net/http"
	"strconv"
)

// Incident lists default to 50 rows; per_page is capped so one dashboard
// request cannot pull a tenant's whole incident history.
const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams holds parsed page/per_page query parameters.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page from the query string, falling
// back to page 1 and the default page size on anything non-positive.
func ParsePagination(r *http.Request) PaginationParams {
	return PaginationParams{
		Page:    positiveQueryInt(r, "page", 1, 0),
		PerPage: positiveQueryInt(r, "per_page", defaultPerPage, maxPerPage),
	}
}

func positiveQueryInt(r *http.Request, key string, fallback, limit int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return fallback
	}
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// Offset returns the row offset for the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Meta builds the response metadata for a total row count.
func (p PaginationParams) Meta(total int64) PaginationMeta {
	meta := PaginationMeta{Page: p.Page, PerPage: p.PerPage, Total: total}
	if p.PerPage > 0 {
		meta.TotalPages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return meta
}
