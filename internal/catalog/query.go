package catalog

import (
	"net/url"
	"strconv"
	"strings"

	"catalog-harvester/internal/models"
)

// DefaultBaseURL is the search endpoint used when none is configured.
const DefaultBaseURL = "https://openlibrary.org/search.json"

// Request parameter names.
const (
	ParamQuery  = "q"
	ParamAuthor = "author"
	ParamTitle  = "title"
	ParamPage   = "page"
)

// Query walks the result pages of one search. It is owned by a single
// download loop and is not safe for concurrent use.
type Query struct {
	baseURL  string
	criteria models.SearchCriteria
	page     int
	params   url.Values
}

// NewQuery creates a Query positioned before the first page.
func NewQuery(baseURL string, criteria models.SearchCriteria) *Query {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Query{baseURL: baseURL, criteria: criteria}
}

// Page returns the number of the last page handed out by Next, 0 before the first call.
func (q *Query) Page() int {
	return q.page
}

// Params returns the request parameters derived from the search criteria.
// They are built on first use and the same mapping is reused for every page;
// Next only changes the page entry.
func (q *Query) Params() url.Values {
	if q.params != nil {
		return q.params
	}

	params := url.Values{}
	if q.criteria.Query != "" {
		params.Set(ParamQuery, q.criteria.Query)
	} else {
		if q.criteria.Author != "" {
			params.Set(ParamAuthor, q.criteria.Author)
		}
		if q.criteria.Title != "" {
			params.Set(ParamTitle, q.criteria.Title)
		}
	}
	q.params = params
	return q.params
}

// Next advances to the following page and returns its request URL.
func (q *Query) Next() string {
	params := q.Params()
	q.page++
	params.Set(ParamPage, strconv.Itoa(q.page))

	sep := "?"
	if strings.Contains(q.baseURL, "?") {
		sep = "&"
	}
	return q.baseURL + sep + params.Encode()
}

// SearchURL builds the first-page request URL for a search.
func SearchURL(baseURL string, criteria models.SearchCriteria) string {
	return NewQuery(baseURL, criteria).Next()
}
