/*
Package sqlite provides a SQLite-backed casebook.DocumentStore.

PURPOSE:
  Persists profile, entry and audit documents for a single-node deployment.
  Documents are stored whole as JSON text, keyed by collection and id.

KEY TABLES:
  documents: (collection, id) primary key, JSON data, updated_at

CHANGE NOTIFICATIONS:
  SQLite has no change feed a separate process could listen to, so Subscribe
  only sees writes made through this Store. Run one server per database
  file, or use the Redis store for several.

CONCURRENCY:
  Uses sync.RWMutex around statements, as SQLite allows one writer at a time.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/casebook.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := casebook.NewService(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - casebook/store.go: Interface definition
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/casebook/casebook"
	"github.com/warp/casebook/store"
)

// Store implements casebook.DocumentStore using SQLite.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	notifier *store.Notifier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, notifier: store.NewNotifier()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection_updated
		ON documents(collection, updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// Get returns a document's data.
func (s *Store) Get(ctx context.Context, c casebook.Collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		string(c), id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, casebook.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c, id, err)
	}
	return []byte(data), nil
}

// Put creates or replaces a document.
func (s *Store) Put(ctx context.Context, c casebook.Collection, id string, data []byte) error {
	now := time.Now().UTC()

	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, string(c), id, string(data), now.Format(time.RFC3339Nano))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c, id, err)
	}

	s.notifier.Publish(casebook.Change{Collection: c, ID: id, Kind: casebook.ChangePut, At: now})
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, c casebook.Collection, id string) error {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		string(c), id,
	)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	if n == 0 {
		return casebook.ErrNotFound
	}

	s.notifier.Publish(casebook.Change{Collection: c, ID: id, Kind: casebook.ChangeDelete, At: time.Now().UTC()})
	return nil
}

// List returns all documents in a collection ordered by id.
func (s *Store) List(ctx context.Context, c casebook.Collection) ([]casebook.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data, updated_at FROM documents WHERE collection = ? ORDER BY id",
		string(c),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	docs := make([]casebook.Document, 0)
	for rows.Next() {
		var d casebook.Document
		var data, updatedAt string
		if err := rows.Scan(&d.ID, &data, &updatedAt); err != nil {
			return nil, err
		}
		d.Data = []byte(data)
		d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Subscribe streams changes written through this Store.
func (s *Store) Subscribe(ctx context.Context, c casebook.Collection) (<-chan casebook.Change, error) {
	return s.notifier.Subscribe(ctx, c), nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all documents (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM documents")
	return err
}
