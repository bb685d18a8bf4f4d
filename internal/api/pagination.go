package api

import (
	"math"
	"net/http"
	"strconv"
)

// PaginationParams is a parsed ?page=&limit= pair.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginatedResponse wraps one page of a list.
type PaginatedResponse struct {
	Data       any            `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta describes where a page sits in the full list.
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// ParsePagination reads page (from 1) and limit (defaultLimit when absent,
// capped at maxLimit) from the query string. page is capped so the offset
// cannot overflow.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	q := r.URL.Query()
	limit := min(queryInt(q.Get("limit"), defaultLimit), maxLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	page := min(max(queryInt(q.Get("page"), 1), 1), math.MaxInt/limit)
	return PaginationParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Paginate cuts the requested page out of items.
func Paginate[T any](items []T, p PaginationParams) PaginatedResponse {
	total := len(items)
	pages := max((total+p.Limit-1)/p.Limit, 1)

	start := min(p.Offset, total)
	if start < 0 {
		start = total
	}
	end := min(start+p.Limit, total)
	page := make([]T, end-start)
	copy(page, items[start:end])

	return PaginatedResponse{
		Data: page,
		Pagination: PaginationMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: pages,
			HasMore:    p.Page < pages,
		},
	}
}
