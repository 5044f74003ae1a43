package harvest

import (
	"github.com/rs/zerolog"

	"catalog-harvester/internal/catalog"
)

type options struct {
	baseURL  string
	pageSize int
	logger   zerolog.Logger
}

func defaultOptions() options {
	return options{
		baseURL:  catalog.DefaultBaseURL,
		pageSize: catalog.DefaultPageSize,
		logger:   zerolog.Nop(),
	}
}

// Option configures a Downloader or Registrar.
type Option func(*options)

// WithBaseURL sets the search endpoint.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		if baseURL != "" {
			o.baseURL = baseURL
		}
	}
}

// WithPageSize sets the page size used to derive page counts from document totals.
func WithPageSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
