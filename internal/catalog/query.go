package catalog

import (
	"net/url"
	"strconv"

	"github.com/fjod/chibi-storefront/internal/domain"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 12
)

// Query holds the listing filters. Zero values mean "not set".
type Query struct {
	Search   string
	Category string
	OnSale   *bool
	Ordering string
	Page     int
	PageSize int
	// Line filters by product line; domain.AllLines disables the filter.
	Line string
}

// Values merges q over the defaults and renders the query string.
func (q Query) Values(defaultPageSize int) url.Values {
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = DefaultPage
	}
	if size <= 0 {
		size = defaultPageSize
	}

	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("page_size", strconv.Itoa(size))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("categoria", q.Category)
	}
	if q.OnSale != nil {
		v.Set("oferta", strconv.FormatBool(*q.OnSale))
	}
	if q.Ordering != "" {
		v.Set("ordering", q.Ordering)
	}
	if q.Line != "" && q.Line != domain.AllLines {
		v.Set("linea", q.Line)
	}
	return v
}

// ParseQuery reads listing filters using the API parameter names, so the
// gateway can pass a browser query string through.
func ParseQuery(v url.Values) Query {
	q := Query{
		Search:   v.Get("search"),
		Category: v.Get("categoria"),
		Ordering: v.Get("ordering"),
		Line:     v.Get("linea"),
	}
	if s := v.Get("oferta"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			q.OnSale = &b
		}
	}
	q.Page, _ = strconv.Atoi(v.Get("page"))
	q.PageSize, _ = strconv.Atoi(v.Get("page_size"))
	return q
}
