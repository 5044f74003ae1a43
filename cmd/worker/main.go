package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/afero"

	"catalog-harvester/internal/config"
	hkafka "catalog-harvester/internal/kafka"
	"catalog-harvester/internal/logging"
	"catalog-harvester/internal/metrics"
	"catalog-harvester/internal/models"
	"catalog-harvester/internal/pipeline"
	"catalog-harvester/internal/store"
)

const (
	fetchErrorBackoff = 500 * time.Millisecond
	dlqPublishTimeout = 30 * time.Second
)

// sessionRunner executes one harvest job end to end.
type sessionRunner interface {
	Run(ctx context.Context, job models.HarvestJob) (models.HarvestStatus, error)
}

type worker struct {
	reader     hkafka.MessageReader
	runner     sessionRunner
	dlqWriter  hkafka.MessageWriter
	jobTimeout time.Duration
	commitCh   chan<- kafka.Message
	sem        chan struct{}
	wg         *sync.WaitGroup
	logger     zerolog.Logger
}

func newWorker(
	reader hkafka.MessageReader,
	runner sessionRunner,
	dlqWriter hkafka.MessageWriter,
	concurrentJobs int,
	jobTimeout time.Duration,
	commitCh chan<- kafka.Message,
	wg *sync.WaitGroup,
	logger zerolog.Logger,
) *worker {
	if concurrentJobs < 1 {
		concurrentJobs = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &worker{
		reader:     reader,
		runner:     runner,
		dlqWriter:  dlqWriter,
		jobTimeout: jobTimeout,
		commitCh:   commitCh,
		sem:        make(chan struct{}, concurrentJobs),
		wg:         wg,
		logger:     logger,
	}
}

func main() {
	configPath := flag.String("config", "", "config file (default is ./harvester.yaml)")
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
	logger := logging.NewLogger("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := hkafka.NewReader(cfg.Kafka.Broker, cfg.Kafka.JobsTopic, cfg.Kafka.GroupID)
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close reader")
		}
	}()

	dlqWriter := hkafka.NewWriter(cfg.Kafka.Broker, cfg.Kafka.DLQTopic)
	defer func() {
		if err := dlqWriter.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close dlq writer")
		}
	}()

	statusStore := store.NewRedisStatusStore(cfg.Redis.Addr, cfg.Redis.StatusPrefix, cfg.Redis.StatusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close status store")
		}
	}()

	sink, err := store.OpenSink(ctx, cfg.Sink, cfg.Kafka, logging.NewLogger("sink"))
	if err != nil {
		logger.Error().Err(err).Str("kind", cfg.Sink.Kind).Msg("failed to open sink")
		return
	}
	defer func() {
		if err := sink.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to close sink")
		}
	}()

	if cfg.Worker.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.Worker.MetricsAddr, logger)
	}

	fetcher := pipeline.NewFetcher(ctx, cfg.Catalog, logging.NewLogger("catalog"))
	runner := pipeline.NewRunner(afero.NewOsFs(), fetcher, sink, statusStore, pipeline.SettingsFromConfig(cfg), logger)

	commitCh := make(chan kafka.Message, cfg.Worker.ConcurrentJobs*2)
	coordinator := newCommitCoordinator(reader, commitCh, logger)
	var coordWg sync.WaitGroup
	coordWg.Add(1)
	go coordinator.run(ctx, &coordWg)

	logger.Info().
		Str("topic", cfg.Kafka.JobsTopic).
		Str("group", cfg.Kafka.GroupID).
		Str("broker", cfg.Kafka.Broker).
		Int("concurrent_jobs", cfg.Worker.ConcurrentJobs).
		Msg("worker consuming")

	var wg sync.WaitGroup
	w := newWorker(reader, runner, dlqWriter, cfg.Worker.ConcurrentJobs, cfg.Worker.JobTimeout, commitCh, &wg, logger)
	w.run(ctx)
	wg.Wait()
	close(commitCh)
	coordWg.Wait()
}

// run consumes harvest jobs and dispatches each to a session goroutine,
// bounded by the semaphore. Commits go through the coordinator.
func (w *worker) run(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error().Err(err).Msg("fetch error")
			time.Sleep(fetchErrorBackoff)
			continue
		}

		if err := w.dispatchMessage(ctx, msg); err != nil {
			w.logger.Error().Err(err).Msg("message dispatch error")
		}
	}
}

// dispatchMessage decodes synchronously and starts the session in a goroutine.
// Undecodable messages are committed straight away.
func (w *worker) dispatchMessage(ctx context.Context, msg kafka.Message) error {
	job, err := hkafka.DecodeJob(msg)
	if err == nil && job.SessionID == "" {
		err = errors.New("job has no session id")
	}
	if err != nil {
		metrics.WorkerJobsTotal.WithLabelValues("invalid").Inc()
		w.logger.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("invalid job payload")
		w.commitCh <- msg
		return nil
	}
	metrics.WorkerJobsTotal.WithLabelValues("received").Inc()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.sem <- struct{}{}:
	}
	metrics.WorkerInFlight.Inc()
	w.wg.Add(1)
	go w.processJobAsync(ctx, msg, job)
	return nil
}

// processJobAsync runs one session under the job timeout. The message is
// always handed to the coordinator so the partition keeps advancing.
func (w *worker) processJobAsync(ctx context.Context, msg kafka.Message, job models.HarvestJob) {
	defer func() {
		metrics.WorkerInFlight.Dec()
		<-w.sem
		w.commitCh <- msg
		w.wg.Done()
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	logger := w.logger.With().Str("session", job.SessionID).Logger()
	logger.Info().
		Str("seed_url", job.SeedURL).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("received job")

	status, err := w.runner.Run(jobCtx, job)
	if err != nil {
		metrics.WorkerJobsTotal.WithLabelValues(models.StatusFailed).Inc()
		if dlqErr := w.publishDLQ(ctx, job, status, err); dlqErr != nil {
			logger.Error().Err(dlqErr).Msg("dlq publish error")
		}
		return
	}
	metrics.WorkerJobsTotal.WithLabelValues(models.StatusDone).Inc()
}

func (w *worker) publishDLQ(ctx context.Context, job models.HarvestJob, status models.HarvestStatus, cause error) error {
	if w.dlqWriter == nil {
		return nil
	}
	payload, err := json.Marshal(models.HarvestFailure{
		SessionID:    job.SessionID,
		SeedURL:      job.SeedURL,
		Criteria:     job.Criteria,
		PagesWritten: status.PagesWritten,
		Error:        cause.Error(),
		FailedAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	// The session may have failed because ctx ended; the failure is still published.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dlqPublishTimeout)
	defer cancel()
	return w.dlqWriter.WriteMessages(publishCtx, kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}
