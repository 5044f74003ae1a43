package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// SearchCriteria holds the terms of one catalog search. When Query is set it
// takes precedence over Author and Title.
type SearchCriteria struct {
	Query  string `json:"q,omitempty"`
	Author string `json:"author,omitempty"`
	Title  string `json:"title,omitempty"`
}

// IsEmpty reports whether no search term was supplied.
func (c SearchCriteria) IsEmpty() bool {
	return c.Query == "" && c.Author == "" && c.Title == ""
}

// SearchPage is one page of a catalog search response as it appears on the wire.
// Only the total count and the document list are read; everything else is ignored.
type SearchPage struct {
	NumDocs  *json.Number `json:"num_docs,omitempty"`
	NumFound *json.Number `json:"numFound,omitempty"`
	Docs     []BookRecord `json:"docs"`
}

// TotalDocs returns the declared number of matching documents across all pages.
// num_docs wins over Open Library's numFound when both are present.
func (p SearchPage) TotalDocs() int {
	switch {
	case p.NumDocs != nil:
		return countOf(*p.NumDocs)
	case p.NumFound != nil:
		return countOf(*p.NumFound)
	default:
		return 0
	}
}

// countOf reads a document count that may be written as a float (5.0).
// Fractions round up and values beyond the int range clamp to it.
func countOf(n json.Number) int {
	if i, err := strconv.ParseInt(n.String(), 10, 0); err == nil {
		return int(i)
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) {
		return 0
	}
	f = math.Ceil(f)
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	default:
		return int(f)
	}
}
