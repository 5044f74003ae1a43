package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	kgo "github.com/segmentio/kafka-go"

	hkafka "catalog-harvester/internal/kafka"
	"catalog-harvester/internal/models"
	"catalog-harvester/mocks"
)

func TestProducerWriteJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := hkafka.NewProducerWithWriter(writer)

	job := models.HarvestJob{
		SessionID: "session-123",
		Criteria:  models.SearchCriteria{Author: "Frank Herbert", Title: "Dune"},
		SeedURL:   "https://openlibrary.org/search.json?author=Frank+Herbert&page=1&title=Dune",
		CreatedAt: time.Unix(0, 0).UTC(),
	}

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(msgs))
			}
			if string(msgs[0].Key) != job.SessionID {
				t.Fatalf("unexpected message key: %s", string(msgs[0].Key))
			}

			got, err := hkafka.DecodeJob(msgs[0])
			if err != nil {
				t.Fatalf("failed to decode message: %v", err)
			}
			if got.SessionID != job.SessionID || got.Criteria != job.Criteria || got.SeedURL != job.SeedURL {
				t.Fatalf("unexpected job payload: %+v", got)
			}
			return nil
		})

	if err := prod.WriteJob(context.Background(), job); err != nil {
		t.Fatalf("WriteJob returned error: %v", err)
	}
}

func TestProducerWriteJobError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := hkafka.NewProducerWithWriter(writer)

	job := models.HarvestJob{SessionID: "session-err"}
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("write failed"))
	if err := prod.WriteJob(context.Background(), job); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestProducerClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	writer.EXPECT().Close().Return(nil)
	if err := hkafka.NewProducerWithWriter(writer).Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestDecodeJobInvalid(t *testing.T) {
	if _, err := hkafka.DecodeJob(kgo.Message{Value: []byte("{")}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBookPublisherInsertBooks(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	pub := hkafka.NewBookPublisherWithWriter(writer, zerolog.Nop())

	var page models.SearchPage
	if err := json.Unmarshal([]byte(`{"docs": [
		{"author": "Frank Herbert", "title": "Dune", "edition_count": 60},
		{"author": "Mary Shelley", "title": "Frankenstein"}
	]}`), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			if len(msgs) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(msgs))
			}
			if string(msgs[0].Key) != "Frank Herbert" || string(msgs[1].Key) != "Mary Shelley" {
				t.Fatalf("unexpected keys: %s, %s", msgs[0].Key, msgs[1].Key)
			}
			var doc map[string]any
			if err := json.Unmarshal(msgs[0].Value, &doc); err != nil {
				t.Fatalf("invalid payload: %v", err)
			}
			if doc["edition_count"] != float64(60) {
				t.Fatalf("payload lost fields: %v", doc)
			}
			return nil
		})

	n, err := pub.InsertBooks(context.Background(), page.Docs)
	if err != nil {
		t.Fatalf("InsertBooks returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}

func TestBookPublisherWriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	pub := hkafka.NewBookPublisherWithWriter(writer, zerolog.Nop())
	n, err := pub.InsertBooks(context.Background(), []models.BookRecord{{Title: "Dune"}})
	if err == nil || n != 0 {
		t.Fatalf("expected failure with 0 count, got n=%d err=%v", n, err)
	}
}

func TestBookPublisherEmptyBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	pub := hkafka.NewBookPublisherWithWriter(mocks.NewMockMessageWriter(ctrl), zerolog.Nop())
	if n, err := pub.InsertBooks(context.Background(), nil); err != nil || n != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}
}
