package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"catalog-harvester/internal/config"
	"catalog-harvester/internal/graph"
	"catalog-harvester/internal/harvest"
	hkafka "catalog-harvester/internal/kafka"
	"catalog-harvester/internal/logging"
	"catalog-harvester/internal/metrics"
	"catalog-harvester/internal/models"
)

const fetchErrorBackoff = 500 * time.Millisecond

// graph-writer drains the books topic filled by the kafka sink into Neo4j.
func main() {
	configPath := flag.String("config", "", "config file (default is ./harvester.yaml)")
	groupID := flag.String("group", "harvest-graph-writer", "Kafka consumer group")
	metricsAddr := flag.String("metrics-addr", ":9091", "metrics listen address (empty disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Color:  cfg.Logging.Color,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("graph-writer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := graph.Connect(ctx, cfg.Sink.Neo4jURI, cfg.Sink.Neo4jUser, cfg.Sink.Neo4jPassword)
	if err != nil {
		logger.Error().Err(err).Str("uri", cfg.Sink.Neo4jURI).Msg("neo4j driver error")
		return
	}
	books := graph.NewBookGraph(driver, logger)
	defer func() {
		if err := books.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to close neo4j driver")
		}
	}()

	reader := hkafka.NewReader(cfg.Kafka.Broker, cfg.Kafka.BooksTopic, *groupID)
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close reader")
		}
	}()

	if *metricsAddr != "" {
		startMetricsServer(ctx, *metricsAddr, logger)
	}

	logger.Info().
		Str("topic", cfg.Kafka.BooksTopic).
		Str("group", *groupID).
		Str("neo4j", cfg.Sink.Neo4jURI).
		Msg("graph writer consuming")
	consumeBooks(ctx, reader, books, logger)
}

func startMetricsServer(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics shutdown error")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// consumeBooks writes each book message to inserter and commits it. A message
// whose write failed is left uncommitted so it is redelivered after a restart.
func consumeBooks(ctx context.Context, reader hkafka.MessageReader, inserter harvest.Inserter, logger zerolog.Logger) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("books fetch error")
			time.Sleep(fetchErrorBackoff)
			continue
		}

		var record models.BookRecord
		if err := json.Unmarshal(msg.Value, &record); err != nil {
			metrics.GraphWriterMessagesTotal.WithLabelValues("invalid").Inc()
			logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("invalid book payload")
		} else if _, err := inserter.InsertBooks(ctx, []models.BookRecord{record}); err != nil {
			metrics.GraphWriterMessagesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			logger.Error().Err(err).Str("title", record.Title).Msg("book write error")
			continue
		} else {
			metrics.GraphWriterMessagesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error().Err(err).Int64("offset", msg.Offset).Msg("books commit error")
		}
	}
}
