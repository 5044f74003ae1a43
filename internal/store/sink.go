// Package store holds the insertion sinks book records are registered into
// and the Redis store that tracks harvest sessions.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"catalog-harvester/internal/config"
	"catalog-harvester/internal/graph"
	"catalog-harvester/internal/harvest"
	"catalog-harvester/internal/kafka"
)

// ErrUnknownSink is returned by OpenSink for an unsupported sink kind.
var ErrUnknownSink = errors.New("unknown sink kind")

// Sink is an Inserter that owns a connection.
type Sink interface {
	harvest.Inserter
	Close(ctx context.Context) error
}

var (
	_ Sink = (*SQLiteBookStore)(nil)
	_ Sink = (*MongoBookStore)(nil)
	_ Sink = (*graph.BookGraph)(nil)
	_ Sink = (*kafka.BookPublisher)(nil)
)

// OpenSink opens the sink selected by cfg.Kind.
func OpenSink(ctx context.Context, cfg config.SinkConfig, kafkaCfg config.KafkaConfig, logger zerolog.Logger) (Sink, error) {
	logger = logger.With().Str("sink", cfg.Kind).Logger()

	switch cfg.Kind {
	case config.SinkSQLite:
		s, err := OpenSQLiteBookStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SinkMongo:
		s, err := NewMongoBookStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SinkNeo4j:
		driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, fmt.Errorf("neo4j driver error: %w", err)
		}
		return graph.NewBookGraph(driver, logger), nil
	case config.SinkKafka:
		return kafka.NewBookPublisher(kafkaCfg.Broker, kafkaCfg.BooksTopic, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, cfg.Kind)
	}
}
