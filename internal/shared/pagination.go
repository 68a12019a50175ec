package shared

import "math"

// DefaultPageSize is the fixed page size of the operator tables.
const DefaultPageSize = 100

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the LIMIT/OFFSET start for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
