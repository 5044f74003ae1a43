// Package harvest drives a catalog search across its result pages and later
// registers the stored pages into an insertion sink.
package harvest

import (
	"context"

	"catalog-harvester/internal/catalog"
	"catalog-harvester/internal/metrics"
	"catalog-harvester/internal/models"
)

// firstPageFailureEstimate is the page count assumed when page 1 cannot be fetched.
const firstPageFailureEstimate = 2

// DownloadResult summarises one download run.
type DownloadResult struct {
	Fetches     int
	Written     int
	TotalPages  int
	FailedPages []int
}

// Downloader fetches every page of a search and persists each one it receives.
type Downloader struct {
	fetcher Fetcher
	writer  PageWriter
	opts    options
}

// NewDownloader creates a Downloader.
func NewDownloader(fetcher Fetcher, writer PageWriter, opts ...Option) *Downloader {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Downloader{fetcher: fetcher, writer: writer, opts: o}
}

// Download requests pages 1, 2, ... in order until the page cursor reaches the
// estimated page count. Page i+1 is written to paths[i] when its fetch
// succeeds; a failed page leaves its slot untouched and is not retried.
//
// The estimate starts at 1 and is replaced by the page count derived from
// each successful page. A page that yields no count (no documents, or an
// unreadable payload) leaves it unchanged. When page 1 fails the estimate
// becomes 2. The loop also stops early when paths runs out or ctx is done.
func (d *Downloader) Download(ctx context.Context, criteria models.SearchCriteria, paths []string) DownloadResult {
	logger := d.opts.logger
	query := catalog.NewQuery(d.opts.baseURL, criteria)
	result := DownloadResult{TotalPages: 1}

	for query.Page() < result.TotalPages {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Int("page", query.Page()+1).Msg("download cancelled")
			break
		}
		if query.Page() >= len(paths) {
			logger.Warn().
				Int("page", query.Page()+1).
				Int("slots", len(paths)).
				Int("total_pages", result.TotalPages).
				Msg("no destination slot left for page")
			break
		}

		url := query.Next()
		page := query.Page()
		result.Fetches++

		content, ok := d.fetcher.Fetch(ctx, url)
		if !ok {
			metrics.HarvestPagesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			result.FailedPages = append(result.FailedPages, page)
			if page == 1 {
				result.TotalPages = firstPageFailureEstimate
			}
			logger.Warn().Int("page", page).Str("url", url).Msg("page skipped")
			continue
		}

		metrics.HarvestPagesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		d.writer.Write(paths[page-1], content)
		metrics.HarvestPagesWritten.Inc()
		result.Written++

		if total := catalog.NewResponse(content, d.opts.pageSize, logger).TotalPages(); total > 0 {
			result.TotalPages = total
		}
		logger.Debug().Int("page", page).Int("total_pages", result.TotalPages).Msg("page downloaded")
	}

	logger.Info().
		Int("fetches", result.Fetches).
		Int("written", result.Written).
		Int("total_pages", result.TotalPages).
		Ints("failed_pages", result.FailedPages).
		Msg("download finished")
	return result
}
