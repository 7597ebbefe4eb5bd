package shared

import "math"

// DefaultPerPage is applied when a page request carries no size.
const DefaultPerPage = 20

// MaxPerPage caps the page size a caller may request.
const MaxPerPage = 100

// PageRequest describes a paginated listing request.
type PageRequest struct {
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Search  string `json:"search"`
	SortBy  string `json:"sort_by"`
	SortDir string `json:"sort_dir"`
}

// Normalize clamps the request into valid bounds.
func (r PageRequest) Normalize() PageRequest {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PerPage <= 0 {
		r.PerPage = DefaultPerPage
	}
	if r.PerPage > MaxPerPage {
		r.PerPage = MaxPerPage
	}
	if r.SortDir != "desc" {
		r.SortDir = "asc"
	}
	return r
}

// Offset returns the row offset for the requested page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.PerPage
}

// Page is one page of a listing together with its paging metadata.
type Page[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	From        int `json:"from"`
	To          int `json:"to"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// NewPage assembles paging metadata around one page of data.
func NewPage[T any](data []T, page, perPage, total int) Page[T] {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	lastPage := int(math.Ceil(float64(total) / float64(perPage)))
	if lastPage < 1 {
		lastPage = 1
	}
	from, to := 0, 0
	if len(data) > 0 {
		from = (page-1)*perPage + 1
		to = from + len(data) - 1
	}
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:        data,
		CurrentPage: page,
		From:        from,
		To:          to,
		LastPage:    lastPage,
		PerPage:     perPage,
		Total:       total,
	}
}

// PageSlice cuts one page out of an already filtered and sorted slice.
func PageSlice[T any](items []T, req PageRequest) Page[T] {
	req = req.Normalize()
	total := len(items)
	start := req.Offset()
	if start > total {
		start = total
	}
	end := start + req.PerPage
	if end > total {
		end = total
	}
	return NewPage(items[start:end], req.Page, req.PerPage, total)
}
