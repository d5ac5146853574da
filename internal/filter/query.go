package filter

import (
	"net/url"
	"strconv"
	"time"
)

// DefaultPageSize is used when a collection does not declare one.
const DefaultPageSize = 10

// ListQuery is the immutable request for one page of a collection. Every
// With method returns a new value; all except WithPage reset Page to 1.
type ListQuery struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Filter   State `json:"filter"`
}

// NewListQuery returns the first page with no filters.
func NewListQuery(pageSize int) ListQuery {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return ListQuery{Page: 1, PageSize: pageSize}
}

// WithPage changes only the page. Values below 1 become 1.
func (q ListQuery) WithPage(page int) ListQuery {
	q.Page = max(1, page)
	return q
}

// WithPageSize changes the page size. Non-positive sizes are ignored.
func (q ListQuery) WithPageSize(size int) ListQuery {
	if size > 0 {
		q.PageSize = size
	}
	q.Page = 1
	return q
}

func (q ListQuery) WithSearchText(text string) ListQuery {
	q.Filter.SetSearchText(text)
	q.Page = 1
	return q
}

func (q ListQuery) WithFromDate(d *time.Time) ListQuery {
	q.Filter.SetFromDate(d)
	q.Page = 1
	return q
}

func (q ListQuery) WithToDate(d *time.Time) ListQuery {
	q.Filter.SetToDate(d)
	q.Page = 1
	return q
}

func (q ListQuery) WithStatus(s Status) ListQuery {
	q.Filter.SetStatus(s)
	q.Page = 1
	return q
}

// WithFilter replaces every filter at once.
func (q ListQuery) WithFilter(s State) ListQuery {
	q.Filter = State{}
	q.Filter.SetSearchText(s.SearchText)
	q.Filter.SetFromDate(s.FromDate)
	q.Filter.SetToDate(s.ToDate)
	q.Filter.SetStatus(s.Status)
	q.Page = 1
	return q
}

// WithoutFilters clears every filter.
func (q ListQuery) WithoutFilters() ListQuery {
	q.Filter.Reset()
	q.Page = 1
	return q
}

// Equal reports whether two queries request the same page.
func (q ListQuery) Equal(o ListQuery) bool {
	return q.Page == o.Page && q.PageSize == o.PageSize && q.Filter.Equal(o.Filter)
}

// Params serializes the query, pagination included.
func (q ListQuery) Params(names ParamNames) map[string]string {
	names = names.orDefault()
	out := q.Filter.ToQueryParams(names)
	out[names.Page] = strconv.Itoa(max(1, q.Page))
	out[names.Limit] = strconv.Itoa(q.PageSize)
	return out
}

// Values is Params as url.Values.
func (q ListQuery) Values(names ParamNames) url.Values {
	v := make(url.Values)
	for k, val := range q.Params(names) {
		v.Set(k, val)
	}
	return v
}
