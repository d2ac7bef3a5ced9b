package shared

import "math"

// Pagination contains metadata for offset based listings.
type Pagination struct {
	Offset     int  `json:"offset"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ClampLimit bounds a requested page size to (0, max], using def for unset values.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

// NewPagination computes pagination metadata.
func NewPagination(offset, limit, total int) Pagination {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{
		Offset:     offset,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    offset+limit < total,
	}
}
