// Package graph registers book records in Neo4j as Book and Author nodes
// joined by WROTE relationships.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"catalog-harvester/internal/metrics"
	"catalog-harvester/internal/models"
)

const sinkLabel = "neo4j"

// BookGraph is an insertion sink backed by Neo4j.
type BookGraph struct {
	driver DriverSessioner
	logger zerolog.Logger
}

// NewBookGraph creates a BookGraph over driver.
func NewBookGraph(driver DriverSessioner, logger zerolog.Logger) *BookGraph {
	return &BookGraph{driver: driver, logger: logger}
}

// InsertBooks writes each record in its own transaction and returns how many
// were written. Records with neither a key nor a title are skipped. A failed
// write does not stop the batch; the failures are returned joined.
func (g *BookGraph) InsertBooks(ctx context.Context, records []models.BookRecord) (int, error) {
	written := 0
	var errs []error

	for _, record := range records {
		query, params, ok := buildBookQuery(record)
		if !ok {
			g.logger.Debug().Msg("book without key or title skipped")
			continue
		}
		if err := g.runWrite(ctx, query, params); err != nil {
			metrics.InsertErrorsTotal.WithLabelValues(sinkLabel).Inc()
			g.logger.Error().Err(err).Interface("key", params["key"]).Msg("neo4j book write failed")
			errs = append(errs, err)
			continue
		}
		written++
	}

	metrics.RecordsInserted.WithLabelValues(sinkLabel).Add(float64(written))
	return written, errors.Join(errs...)
}

// Close closes the driver.
func (g *BookGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *BookGraph) runWrite(ctx context.Context, query string, params map[string]any) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := session.Close(ctx); err != nil {
			g.logger.Warn().Err(err).Msg("neo4j session close error")
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

const bookQuery = "MERGE (b:Book {key: $key}) " +
	"SET b.title = coalesce($title, b.title), b.raw = $raw " +
	"WITH b " +
	"FOREACH (_ IN CASE WHEN $author IS NULL THEN [] ELSE [1] END | " +
	"MERGE (a:Author {name: $author}) " +
	"MERGE (a)-[:WROTE]->(b))"

// buildBookQuery keys a book by the catalog's own "key" field when present,
// otherwise by its normalised title and author.
func buildBookQuery(record models.BookRecord) (string, map[string]any, bool) {
	key := catalogKey(record.Raw)
	if key == "" {
		title := strings.ToLower(strings.TrimSpace(record.Title))
		if title == "" {
			return "", nil, false
		}
		key = "title:" + title + "|" + strings.ToLower(strings.TrimSpace(record.Author))
	}

	var title, author any
	if record.Title != "" {
		title = record.Title
	}
	if record.Author != "" {
		author = record.Author
	}

	raw, err := json.Marshal(record)
	if err != nil {
		raw = nil
	}

	params := map[string]any{
		"key":    key,
		"title":  title,
		"author": author,
		"raw":    string(raw),
	}
	return bookQuery, params, true
}

func catalogKey(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var doc struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return doc.Key
}
