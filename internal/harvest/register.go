package harvest

import (
	"context"

	"catalog-harvester/internal/catalog"
)

// Registrar feeds stored pages to an Inserter.
type Registrar struct {
	reader PageReader
	opts   options
}

// NewRegistrar creates a Registrar. Only WithPageSize and WithLogger apply.
func NewRegistrar(reader PageReader, opts ...Option) *Registrar {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Registrar{reader: reader, opts: o}
}

// Register reads each path in order, extracts its documents and passes them
// to inserter. It returns the sum of the counts the inserter reported.
// Unreadable or malformed pages contribute nothing. An insert error is logged
// and whatever count came with it is still added.
func (r *Registrar) Register(ctx context.Context, paths []string, inserter Inserter) int {
	logger := r.opts.logger
	inserted := 0

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("registration cancelled")
			break
		}

		content := r.reader.Read(path)
		docs := catalog.NewResponse(content, r.opts.pageSize, logger).Documents()

		n, err := inserter.InsertBooks(ctx, docs)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Int("records", len(docs)).Msg("insert failed")
		}
		inserted += n
		logger.Debug().Str("path", path).Int("records", len(docs)).Int("inserted", n).Msg("page registered")
	}

	logger.Info().Int("pages", len(paths)).Int("inserted", inserted).Msg("registration finished")
	return inserted
}
