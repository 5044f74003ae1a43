package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-harvester/internal/models"
)

func decodeRecords(t *testing.T, raw string) []models.BookRecord {
	t.Helper()
	var page models.SearchPage
	require.NoError(t, json.Unmarshal([]byte(raw), &page))
	return page.Docs
}

func TestSQLiteBookStore_InsertBooks(t *testing.T) {
	s, err := OpenSQLiteBookStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close(context.Background())

	ctx := context.Background()
	records := decodeRecords(t, `{"docs": [
		{"author": "Frank Herbert", "title": "Dune", "first_publish_year": 1965},
		{"author": "Frank Herbert", "title": "Dune Messiah"},
		{"author_name": ["Ursula K. Le Guin"], "title": "The Left Hand of Darkness"}
	]}`)

	n, err := s.InsertBooks(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	books, err := s.BooksByAuthor(ctx, "Frank Herbert")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)
	assert.JSONEq(t, `{"author": "Frank Herbert", "title": "Dune", "first_publish_year": 1965}`, string(books[0].Raw))
}

func TestSQLiteBookStore_EmptyBatch(t *testing.T) {
	s, err := OpenSQLiteBookStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close(context.Background())

	n, err := s.InsertBooks(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteBookStore_RecordWithoutRaw(t *testing.T) {
	s, err := OpenSQLiteBookStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close(context.Background())

	ctx := context.Background()
	n, err := s.InsertBooks(ctx, []models.BookRecord{{Author: "Mary Shelley", Title: "Frankenstein"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	books, err := s.BooksByAuthor(ctx, "Mary Shelley")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.JSONEq(t, `{"author": "Mary Shelley", "title": "Frankenstein"}`, string(books[0].Raw))
}

func TestSQLiteBookStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "books.db")
	s, err := OpenSQLiteBookStore(path, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.InsertBooks(context.Background(), []models.BookRecord{{Author: "a", Title: "b"}})
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))

	reopened, err := OpenSQLiteBookStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close(context.Background())

	count, err := reopened.CountBooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
