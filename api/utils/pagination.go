package utils

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
)

const (
	HeaderTotalCount = "X-Total-Count"
	HeaderTotalPages = "X-Total-Pages"
)

type PaginationParams struct {
	Page         int `json:"page"`
	Limit        int `json:"limit"`
	Offset       int `json:"offset"`
	TotalRecords int `json:"total_records"`
	TotalPages   int `json:"total_pages"`
}

// ExtractPagination reads page and limit. ok is false when neither is set,
// in which case callers return everything.
func ExtractPagination(r *http.Request) (params PaginationParams, ok bool, err error) {
	params = PaginationParams{
		Page:  1,
		Limit: 100,
	}

	q := r.URL.Query()
	if p := q.Get("page"); p != "" {
		val, err := strconv.Atoi(p)
		if err != nil || val <= 0 {
			return PaginationParams{}, false, fmt.Errorf("invalid page parameter: %s", p)
		}
		params.Page = val
		ok = true
	}
	if l := q.Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			return PaginationParams{}, false, fmt.Errorf("invalid limit parameter: %s", l)
		}
		params.Limit = val
		ok = true
	}
	params.Offset = (params.Page - 1) * params.Limit
	return params, ok, nil
}

func (p *PaginationParams) SetPaginationStats(totalRecords int) {
	p.TotalRecords = totalRecords
	if totalRecords > 0 {
		p.TotalPages = int(math.Ceil(float64(totalRecords) / float64(p.Limit)))
	} else {
		p.TotalPages = 0
	}
}

// WriteHeaders exposes the totals so the body can stay a plain list.
func (p *PaginationParams) WriteHeaders(w http.ResponseWriter) {
	w.Header().Set(HeaderTotalCount, strconv.Itoa(p.TotalRecords))
	w.Header().Set(HeaderTotalPages, strconv.Itoa(p.TotalPages))
}

// Paginate returns the page of items described by p and records the totals.
func Paginate[T any](items []T, p *PaginationParams) []T {
	p.SetPaginationStats(len(items))
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}
