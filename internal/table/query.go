// Package table implements the generic filterable table: URL-backed query
// state, sort cycling, page clamping, column/filter resolution, cell
// formatting, and per-subject filter persistence.
//
// The URL query string is the single source of truth for table state; Query
// is its decoded form and every transition is a pure function from one Query
// to the next.
package table

import (
	"net/url"
	"sort"
	"strconv"

	"github.com/softrade/brokerdesk/model"
)

// Sort directions carried in order_direction.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// DefaultPerPage is the page size used when the query string carries none.
const DefaultPerPage = 15

// Reserved query parameter names. Everything else is a filter key.
const (
	paramPage           = "page"
	paramPerPage        = "per_page"
	paramOrderBy        = "order_by"
	paramOrderDirection = "order_direction"
)

// Query is the decoded table state.
type Query struct {
	Page           int
	PerPage        int
	OrderBy        string
	OrderDirection string
	Filters        map[string]string
}

// ParseQuery decodes table state from URL query values. Unknown keys become
// filters; empty filter values are dropped. Out-of-range paging falls back
// to defaults rather than erroring.
func ParseQuery(values url.Values) Query {
	q := Query{
		Page:    1,
		PerPage: DefaultPerPage,
		Filters: make(map[string]string),
	}

	if v := values.Get(paramPage); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page >= 1 {
			q.Page = page
		}
	}
	if v := values.Get(paramPerPage); v != "" {
		if per, err := strconv.Atoi(v); err == nil && per >= 1 {
			q.PerPage = per
		}
	}
	q.OrderBy = values.Get(paramOrderBy)
	if dir := values.Get(paramOrderDirection); dir == SortAsc || dir == SortDesc {
		q.OrderDirection = dir
	}
	if q.OrderBy == "" {
		q.OrderDirection = ""
	}

	for key, vals := range values {
		switch key {
		case paramPage, paramPerPage, paramOrderBy, paramOrderDirection:
			continue
		}
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		q.Filters[key] = vals[0]
	}
	return q
}

// Encode renders the query back into URL values. Defaults are omitted so
// shared URLs stay minimal.
func (q Query) Encode() url.Values {
	values := url.Values{}
	if q.Page > 1 {
		values.Set(paramPage, strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 && q.PerPage != DefaultPerPage {
		values.Set(paramPerPage, strconv.Itoa(q.PerPage))
	}
	if q.OrderBy != "" && q.OrderDirection != "" {
		values.Set(paramOrderBy, q.OrderBy)
		values.Set(paramOrderDirection, q.OrderDirection)
	}
	for _, key := range sortedFilterKeys(q.Filters) {
		if q.Filters[key] != "" {
			values.Set(key, q.Filters[key])
		}
	}
	return values
}

// Clone returns a deep copy (the filter map is shared state otherwise).
func (q Query) Clone() Query {
	out := q
	out.Filters = make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		out.Filters[k] = v
	}
	return out
}

// NextSort advances the sort state for a header click on the given column.
// Re-clicking the active column cycles unsorted → asc → desc → unsorted;
// clicking a different column starts it at asc. Non-sortable columns are a
// no-op.
func NextSort(q Query, column string, sortable bool) Query {
	if !sortable {
		return q
	}
	next := q.Clone()
	switch {
	case q.OrderBy != column:
		next.OrderBy = column
		next.OrderDirection = SortAsc
	case q.OrderDirection == SortAsc:
		next.OrderDirection = SortDesc
	default:
		next.OrderBy = ""
		next.OrderDirection = ""
	}
	return next
}

// Navigate moves the query to the requested page. Requests outside
// [1, lastPage] are a no-op: the returned bool reports whether navigation
// happened. A zero lastPage (unknown) permits only page 1.
func Navigate(q Query, page, lastPage int) (Query, bool) {
	if lastPage < 1 {
		lastPage = 1
	}
	if page < 1 || page > lastPage || page == q.Page {
		return q, false
	}
	next := q.Clone()
	next.Page = page
	return next, true
}

// ClampPage folds an incoming query's page into the range the backend
// reported. It never errors: a wild page lands on the nearest valid one.
func ClampPage(q Query, pg model.Pagination) Query {
	clamped := pg.Clamp(q.Page)
	if clamped == q.Page {
		return q
	}
	next := q.Clone()
	next.Page = clamped
	return next
}

// WithFilter sets a filter and resets to page 1. An empty value removes the
// filter instead.
func WithFilter(q Query, key, value string) Query {
	next := q.Clone()
	if value == "" {
		delete(next.Filters, key)
	} else {
		next.Filters[key] = value
	}
	next.Page = 1
	return next
}

// WithoutFilter removes a single filter key, leaving the rest untouched.
func WithoutFilter(q Query, key string) Query {
	next := q.Clone()
	delete(next.Filters, key)
	next.Page = 1
	return next
}

// ReplayFilters merges remembered filters into a query, filling only keys
// the query does not already carry. An explicit URL always wins. The bool
// reports whether anything was replayed.
func ReplayFilters(q Query, stored map[string]string) (Query, bool) {
	replayed := false
	next := q.Clone()
	for key, value := range stored {
		if value == "" {
			continue
		}
		if _, present := next.Filters[key]; present {
			continue
		}
		next.Filters[key] = value
		replayed = true
	}
	return next, replayed
}

func sortedFilterKeys(filters map[string]string) []string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
