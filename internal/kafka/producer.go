package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"catalog-harvester/internal/models"
)

// JobProducer publishes HarvestJob messages.
type JobProducer interface {
	WriteJob(ctx context.Context, job models.HarvestJob) error
}

// Producer wraps a Kafka writer for publishing harvest jobs.
type Producer struct {
	writer MessageWriter
}

// NewProducer creates a Kafka producer for the given broker and topic.
func NewProducer(broker, topic string) *Producer {
	return &Producer{writer: NewWriter(broker, topic)}
}

// NewProducerWithWriter builds a producer using a custom writer (tests).
func NewProducerWithWriter(writer MessageWriter) *Producer {
	return &Producer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// WriteJob publishes a HarvestJob keyed by its session ID.
func (p *Producer) WriteJob(ctx context.Context, job models.HarvestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}

	return p.writer.WriteMessages(ctx, msg)
}

// DecodeJob parses a message written by WriteJob.
func DecodeJob(msg kafka.Message) (models.HarvestJob, error) {
	var job models.HarvestJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return models.HarvestJob{}, err
	}
	return job, nil
}
