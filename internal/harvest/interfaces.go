package harvest

import (
	"context"

	"catalog-harvester/internal/models"
)

// Fetcher performs one catalog request. It returns false instead of an error
// when the page could not be retrieved.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, bool)
}

// PageWriter persists raw page text. Failures are handled by the implementation.
type PageWriter interface {
	Write(path, content string)
}

// PageReader returns stored page text, "" when it cannot be read.
type PageReader interface {
	Read(path string) string
}

// Inserter registers a batch of records and reports how many it accepted.
type Inserter interface {
	InsertBooks(ctx context.Context, records []models.BookRecord) (int, error)
}

// InserterFunc adapts a function to Inserter.
type InserterFunc func(ctx context.Context, records []models.BookRecord) (int, error)

// InsertBooks calls f.
func (f InserterFunc) InsertBooks(ctx context.Context, records []models.BookRecord) (int, error) {
	return f(ctx, records)
}
