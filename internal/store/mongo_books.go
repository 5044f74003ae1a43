package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"catalog-harvester/internal/metrics"
	"catalog-harvester/internal/models"
)

const mongoSinkLabel = "mongo"

// bulkWriter abstracts *mongo.Collection.
type bulkWriter interface {
	BulkWrite(ctx context.Context, writes []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// MongoBookStore inserts book records into a MongoDB collection. Every call
// adds new documents; re-registering a page stores its books again. Each
// document carries a content_hash of the record for later lookups.
type MongoBookStore struct {
	client     *mongo.Client
	collection bulkWriter
	logger     zerolog.Logger
}

// NewMongoBookStore connects to uri and uses dbName.collectionName.
func NewMongoBookStore(ctx context.Context, uri, dbName, collectionName string, logger zerolog.Logger) (*MongoBookStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	collection := client.Database(dbName).Collection(collectionName)
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "author", Value: 1}}, Options: options.Index().SetName("author_idx")},
		{Keys: bson.D{{Key: "content_hash", Value: 1}}, Options: options.Index().SetName("content_hash_idx")},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoBookStore{client: client, collection: collection, logger: logger}, nil
}

// NewMongoBookStoreWithCollection builds a store around an existing collection (tests).
func NewMongoBookStoreWithCollection(collection bulkWriter, logger zerolog.Logger) *MongoBookStore {
	return &MongoBookStore{collection: collection, logger: logger}
}

// InsertBooks inserts every record in one unordered bulk write and returns
// the number of documents the server created.
func (s *MongoBookStore) InsertBooks(ctx context.Context, records []models.BookRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(records))
	for _, record := range records {
		doc, err := mongoDocument(record)
		if err != nil {
			metrics.InsertErrorsTotal.WithLabelValues(mongoSinkLabel).Inc()
			return 0, err
		}
		doc["registered_at"] = now
		writes = append(writes, mongo.NewInsertOneModel().SetDocument(doc))
	}

	res, err := s.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	accepted := 0
	if res != nil {
		accepted = int(res.InsertedCount)
	}
	if err != nil {
		metrics.InsertErrorsTotal.WithLabelValues(mongoSinkLabel).Inc()
		metrics.RecordsInserted.WithLabelValues(mongoSinkLabel).Add(float64(accepted))
		return accepted, fmt.Errorf("failed to bulk insert books: %w", err)
	}

	metrics.RecordsInserted.WithLabelValues(mongoSinkLabel).Add(float64(accepted))
	s.logger.Debug().Int("records", len(records)).Int("accepted", accepted).Msg("books inserted")
	return accepted, nil
}

// Close disconnects the client.
func (s *MongoBookStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func mongoDocument(record models.BookRecord) (bson.M, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	return bson.M{
		"author":       record.Author,
		"title":        record.Title,
		"content_hash": strconv.FormatUint(xxhash.Sum64(raw), 16),
		"document":     fields,
	}, nil
}
