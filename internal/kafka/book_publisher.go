package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"catalog-harvester/internal/metrics"
	"catalog-harvester/internal/models"
)

const sinkLabel = "kafka"

// BookPublisher is an insertion sink that publishes one message per record,
// keyed by author, for downstream consumers to register.
type BookPublisher struct {
	writer MessageWriter
	logger zerolog.Logger
}

// NewBookPublisher creates a publisher for the given broker and topic.
func NewBookPublisher(broker, topic string, logger zerolog.Logger) *BookPublisher {
	return NewBookPublisherWithWriter(NewWriter(broker, topic), logger)
}

// NewBookPublisherWithWriter builds a publisher using a custom writer (tests).
func NewBookPublisherWithWriter(writer MessageWriter, logger zerolog.Logger) *BookPublisher {
	return &BookPublisher{writer: writer, logger: logger}
}

// InsertBooks publishes the batch in one write. The count is the batch size
// on success and 0 when the write fails.
func (p *BookPublisher) InsertBooks(ctx context.Context, records []models.BookRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(records))
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			metrics.InsertErrorsTotal.WithLabelValues(sinkLabel).Inc()
			return 0, fmt.Errorf("failed to encode record: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(record.Author),
			Value: payload,
			Time:  now,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.InsertErrorsTotal.WithLabelValues(sinkLabel).Inc()
		return 0, fmt.Errorf("failed to publish books: %w", err)
	}

	metrics.RecordsInserted.WithLabelValues(sinkLabel).Add(float64(len(msgs)))
	p.logger.Debug().Int("records", len(msgs)).Msg("books published")
	return len(msgs), nil
}

// Close shuts down the underlying writer.
func (p *BookPublisher) Close(context.Context) error {
	return p.writer.Close()
}
