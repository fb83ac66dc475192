package pagination

import (
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page holds offset pagination parameters parsed from a request.
type Page struct {
	Number int
	Limit  int
}

// FromQuery reads page/limit query parameters, falling back to defaults and
// clamping the limit.
func FromQuery(query url.Values) Page {
	page := Page{Number: 1, Limit: DefaultLimit}
	if raw := query.Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page.Number = n
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page.Limit = n
		}
	}
	if page.Limit > MaxLimit {
		page.Limit = MaxLimit
	}
	return page
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// TotalPages returns the page count for the given total row count.
func (p Page) TotalPages(total int64) int {
	if p.Limit <= 0 {
		return 0
	}
	pages := int(total) / p.Limit
	if int(total)%p.Limit != 0 {
		pages++
	}
	return pages
}
