// Package storage persists raw result pages to a filesystem and reads them
// back. Failures are logged and never returned, so one bad page cannot stop a
// harvest.
package storage

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"catalog-harvester/internal/metrics"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// PageWriter writes page text to a path, creating parent directories.
type PageWriter struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewPageWriter returns a PageWriter over fs. A nil fs uses the OS filesystem.
func NewPageWriter(fs afero.Fs, logger zerolog.Logger) *PageWriter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &PageWriter{fs: fs, logger: logger}
}

// Write stores content at path, replacing any previous file. A failure to
// create the parent directory is logged and the write is still attempted.
func (w *PageWriter) Write(path, content string) {
	dir := filepath.Dir(path)
	if err := w.fs.MkdirAll(dir, dirPerm); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("mkdir").Inc()
		w.logger.Error().Err(err).Str("dir", dir).Msg("failed to create page directory")
	}

	if err := afero.WriteFile(w.fs, path, []byte(content), filePerm); err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("write").Inc()
		w.logger.Error().Err(err).Str("path", path).Msg("failed to write page")
		return
	}
	w.logger.Debug().Str("path", path).Int("bytes", len(content)).Msg("page written")
}

// PageReader reads stored page text.
type PageReader struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewPageReader returns a PageReader over fs. A nil fs uses the OS filesystem.
func NewPageReader(fs afero.Fs, logger zerolog.Logger) *PageReader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &PageReader{fs: fs, logger: logger}
}

// Read returns the text stored at path, or "" when it cannot be read.
func (r *PageReader) Read(path string) string {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		metrics.StorageErrorsTotal.WithLabelValues("read").Inc()
		r.logger.Error().Err(err).Str("path", path).Msg("failed to read page")
		return ""
	}
	return string(data)
}
