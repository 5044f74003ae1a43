// Package pipeline runs a complete harvest session: every result page of one
// search is downloaded into a per-session directory and the stored pages are
// then registered into an insertion sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"catalog-harvester/common"
	"catalog-harvester/internal/catalog"
	"catalog-harvester/internal/config"
	"catalog-harvester/internal/harvest"
	"catalog-harvester/internal/metrics"
	"catalog-harvester/internal/models"
	"catalog-harvester/internal/storage"
	"catalog-harvester/internal/store"
)

// Settings holds the per-session knobs taken from configuration.
type Settings struct {
	Dir      string
	Slots    int
	BaseURL  string
	PageSize int
}

// SettingsFromConfig builds Settings from the catalog and storage sections.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Dir:      cfg.Storage.Dir,
		Slots:    cfg.Storage.Slots,
		BaseURL:  cfg.Catalog.BaseURL,
		PageSize: cfg.Catalog.PageSize,
	}
}

// Runner executes harvest sessions.
type Runner struct {
	fs       afero.Fs
	fetcher  harvest.Fetcher
	sink     harvest.Inserter
	status   store.StatusStore
	settings Settings
	logger   zerolog.Logger
}

// NewRunner creates a Runner. status may be nil when progress is not tracked.
func NewRunner(fs afero.Fs, fetcher harvest.Fetcher, sink harvest.Inserter, status store.StatusStore, settings Settings, logger zerolog.Logger) *Runner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Runner{
		fs:       fs,
		fetcher:  fetcher,
		sink:     sink,
		status:   status,
		settings: settings,
		logger:   logger,
	}
}

// SessionDir is where the pages of a session are stored.
func (r *Runner) SessionDir(sessionID string) string {
	return filepath.Join(r.settings.Dir, sessionID)
}

// Download fetches the pages of job into its session directory.
func (r *Runner) Download(ctx context.Context, job models.HarvestJob) harvest.DownloadResult {
	logger := r.sessionLogger(job.SessionID)
	downloader := harvest.NewDownloader(r.fetcher, storage.NewPageWriter(r.fs, logger), r.harvestOptions(logger)...)
	return downloader.Download(ctx, job.Criteria, common.PagePaths(r.SessionDir(job.SessionID), r.settings.Slots))
}

// Register inserts every page stored under dir and returns the inserted count.
// A directory that does not exist holds no pages.
func (r *Runner) Register(ctx context.Context, dir string) (int, error) {
	logger := r.logger.With().Str("dir", dir).Logger()
	paths, err := common.StoredPages(r.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Msg("no stored pages")
			return 0, nil
		}
		return 0, fmt.Errorf("list stored pages: %w", err)
	}

	registrar := harvest.NewRegistrar(storage.NewPageReader(r.fs, logger), r.harvestOptions(logger)...)
	return registrar.Register(ctx, paths, r.sink), nil
}

// Run downloads then registers job, recording progress in the status store.
// The returned status is the last one recorded.
func (r *Runner) Run(ctx context.Context, job models.HarvestJob) (models.HarvestStatus, error) {
	logger := r.sessionLogger(job.SessionID)
	status := models.HarvestStatus{
		SessionID: job.SessionID,
		SeedURL:   job.SeedURL,
		Status:    models.StatusDownloading,
		CreatedAt: job.CreatedAt,
	}
	if status.CreatedAt.IsZero() {
		status.CreatedAt = time.Now().UTC()
	}
	r.record(ctx, logger, status)

	result := r.Download(ctx, job)
	status.TotalPages = result.TotalPages
	status.PagesWritten = result.Written
	status.PagesFailed = len(result.FailedPages)
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, logger, status, fmt.Errorf("download interrupted: %w", err))
	}

	status.Status = models.StatusRegistering
	r.record(ctx, logger, status)

	registered, err := r.Register(ctx, r.SessionDir(job.SessionID))
	status.Registered = registered
	if err != nil {
		return r.fail(ctx, logger, status, err)
	}
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, logger, status, fmt.Errorf("registration interrupted: %w", err))
	}

	status.Status = models.StatusDone
	r.record(ctx, logger, status)
	metrics.SessionsTotal.WithLabelValues(models.StatusDone).Inc()
	logger.Info().
		Int("pages_written", status.PagesWritten).
		Int("pages_failed", status.PagesFailed).
		Int("registered", status.Registered).
		Msg("harvest session finished")
	return status, nil
}

func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, status models.HarvestStatus, err error) (models.HarvestStatus, error) {
	status.Status = models.StatusFailed
	status.Error = err.Error()
	// ctx may already be cancelled; the final status must still land.
	r.record(context.WithoutCancel(ctx), logger, status)
	metrics.SessionsTotal.WithLabelValues(models.StatusFailed).Inc()
	logger.Error().Err(err).Msg("harvest session failed")
	return status, err
}

func (r *Runner) record(ctx context.Context, logger zerolog.Logger, status models.HarvestStatus) {
	if r.status == nil {
		return
	}
	if err := r.status.SetStatus(ctx, status); err != nil {
		logger.Error().Err(err).Str("status", status.Status).Msg("failed to record session status")
	}
}

func (r *Runner) sessionLogger(sessionID string) zerolog.Logger {
	return r.logger.With().Str("session", sessionID).Logger()
}

func (r *Runner) harvestOptions(logger zerolog.Logger) []harvest.Option {
	return []harvest.Option{
		harvest.WithBaseURL(r.settings.BaseURL),
		harvest.WithPageSize(r.settings.PageSize),
		harvest.WithLogger(logger),
	}
}

// NewFetcher builds the catalog transport described by cfg. When robots.txt
// compliance is on and the rules cannot be loaded, every path is allowed.
func NewFetcher(ctx context.Context, cfg config.CatalogConfig, logger zerolog.Logger) *catalog.Fetcher {
	client := &http.Client{Timeout: cfg.Timeout}
	opts := []catalog.Option{
		catalog.WithHTTPClient(client),
		catalog.WithUserAgent(cfg.UserAgent),
		catalog.WithRateLimit(cfg.RequestsPerSecond),
		catalog.WithLogger(logger),
	}

	if cfg.RespectRobots {
		robotsCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		rules, err := catalog.LoadRobots(robotsCtx, client, cfg.BaseURL, cfg.UserAgent)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("robots.txt fetch failed, all paths allowed")
		} else {
			opts = append(opts, catalog.WithRobots(rules))
			logger.Debug().Msg("loaded robots.txt rules")
		}
	}
	return catalog.NewFetcher(opts...)
}
