package model

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Page is one page of a paginated search result.
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// PageQuery describes pagination, sorting and free-form filters of a search.
type PageQuery struct {
	Page    int
	PerPage int
	Sort    string
	Order   SortOrder
	Filters map[string]string
}

// Normalize fills defaults and clamps out-of-range values.
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	if q.Order != SortDesc {
		q.Order = SortAsc
	}
	return q
}

func (q PageQuery) Offset() int {
	q = q.Normalize()
	return (q.Page - 1) * q.PerPage
}

// Values encodes the query as URL parameters.
func (q PageQuery) Values() url.Values {
	q = q.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("per_page", strconv.Itoa(q.PerPage))
	if q.Sort != "" {
		v.Set("sort", q.Sort)
		v.Set("order", string(q.Order))
	}
	for k, f := range q.Filters {
		if f != "" {
			v.Set(k, f)
		}
	}
	return v
}

// ParsePageQuery decodes URL parameters produced by Values. Parameters
// other than the pagination keys become filters.
func ParsePageQuery(v url.Values) PageQuery {
	q := PageQuery{Filters: map[string]string{}}
	q.Page, _ = strconv.Atoi(v.Get("page"))
	q.PerPage, _ = strconv.Atoi(v.Get("per_page"))
	q.Sort = v.Get("sort")
	q.Order = SortOrder(strings.ToLower(v.Get("order")))
	for k := range v {
		switch k {
		case "page", "per_page", "sort", "order":
			continue
		}
		q.Filters[k] = v.Get(k)
	}
	return q.Normalize()
}
