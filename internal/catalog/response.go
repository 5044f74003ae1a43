package catalog

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"catalog-harvester/internal/models"
)

// DefaultPageSize is the number of documents the catalog returns per page.
const DefaultPageSize = 50

// ErrEmptyContent is recorded when a Response wraps a missing page.
var ErrEmptyContent = errors.New("empty page content")

// Response wraps the raw text of one result page. The text is decoded on the
// first call that needs it and the outcome, success or failure, is kept.
type Response struct {
	content  string
	pageSize int
	logger   zerolog.Logger

	parsed bool
	page   models.SearchPage
	err    error
}

// NewResponse wraps content. pageSize below 1 falls back to DefaultPageSize.
func NewResponse(content string, pageSize int, logger zerolog.Logger) *Response {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &Response{
		content:  content,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Content returns the wrapped page text.
func (r *Response) Content() string {
	return r.content
}

// Err returns the decode error, if any.
func (r *Response) Err() error {
	r.parse()
	return r.err
}

// Documents returns the records on this page, or nil when the page could not be decoded.
func (r *Response) Documents() []models.BookRecord {
	r.parse()
	if r.err != nil {
		return nil
	}
	return r.page.Docs
}

// TotalDocs returns the declared number of documents across every page.
func (r *Response) TotalDocs() int {
	r.parse()
	if r.err != nil {
		return 0
	}
	return r.page.TotalDocs()
}

// TotalPages derives the page count of the whole search from this page.
// It is 0 when this page carries no documents.
func (r *Response) TotalPages() int {
	if len(r.Documents()) == 0 {
		return 0
	}
	total := r.TotalDocs()
	if total <= 0 {
		return 0
	}
	pages := total / r.pageSize
	if total%r.pageSize != 0 {
		pages++
	}
	return pages
}

func (r *Response) parse() {
	if r.parsed {
		return
	}
	r.parsed = true

	if r.content == "" {
		r.err = ErrEmptyContent
		r.logger.Warn().Err(r.err).Msg("search result has no content")
		return
	}

	var page models.SearchPage
	if err := json.Unmarshal([]byte(r.content), &page); err != nil {
		r.err = err
		r.logger.Warn().Err(err).Int("bytes", len(r.content)).Msg("invalid search result payload")
		return
	}
	r.page = page
}
