package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"catalog-harvester/internal/metrics"
	"catalog-harvester/internal/models"
)

const sqliteSinkLabel = "sqlite"

// SQLiteBookStore registers book records in a SQLite table.
type SQLiteBookStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// OpenSQLiteBookStore opens (creating if needed) the database at path.
// Use ":memory:" for an in-memory database.
func OpenSQLiteBookStore(path string, logger zerolog.Logger) (*SQLiteBookStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &SQLiteBookStore{db: conn, path: path, logger: logger}
	if err := s.createSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteBookStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			author TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			raw TEXT NOT NULL,
			registered_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_books_author ON books(author);
	`)
	return err
}

// InsertBooks inserts every record in one transaction. Either all records
// are inserted or none are.
func (s *SQLiteBookStore) InsertBooks(ctx context.Context, records []models.BookRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.InsertErrorsTotal.WithLabelValues(sqliteSinkLabel).Inc()
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO books (author, title, raw, registered_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		metrics.InsertErrorsTotal.WithLabelValues(sqliteSinkLabel).Inc()
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, record := range records {
		raw, err := json.Marshal(record)
		if err != nil {
			metrics.InsertErrorsTotal.WithLabelValues(sqliteSinkLabel).Inc()
			return 0, fmt.Errorf("failed to encode record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, record.Author, record.Title, string(raw), now); err != nil {
			metrics.InsertErrorsTotal.WithLabelValues(sqliteSinkLabel).Inc()
			return 0, fmt.Errorf("failed to insert book: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.InsertErrorsTotal.WithLabelValues(sqliteSinkLabel).Inc()
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	metrics.RecordsInserted.WithLabelValues(sqliteSinkLabel).Add(float64(len(records)))
	s.logger.Debug().Int("records", len(records)).Msg("books inserted")
	return len(records), nil
}

// CountBooks returns the number of stored records.
func (s *SQLiteBookStore) CountBooks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books").Scan(&n)
	return n, err
}

// BooksByAuthor returns the stored records for author in insertion order.
func (s *SQLiteBookStore) BooksByAuthor(ctx context.Context, author string) ([]models.BookRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT author, title, raw FROM books WHERE author = ? ORDER BY id`, author)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []models.BookRecord
	for rows.Next() {
		var b models.BookRecord
		var raw string
		if err := rows.Scan(&b.Author, &b.Title, &raw); err != nil {
			return nil, err
		}
		b.Raw = json.RawMessage(raw)
		books = append(books, b)
	}
	return books, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteBookStore) Close(context.Context) error {
	return s.db.Close()
}
