package transport

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/uitrace/pkg/uitrace/sender"
)

// StoredBatch is a batch as recorded by SQLiteTransport.
type StoredBatch struct {
	ID          int64
	SentAt      time.Time
	ContentType string
	Events      int
	Payload     []byte
}

// SQLiteTransport appends every batch to a local SQLite table.
// It acts as a collector for development and offline capture; the engine
// never reads batches back.
type SQLiteTransport struct {
	path   string
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ sender.Transport = (*SQLiteTransport)(nil)

// NewSQLite opens (or creates) the database at path.
func NewSQLite(path string) (*SQLiteTransport, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS beacon_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sent_at TEXT NOT NULL,
			content_type TEXT NOT NULL,
			event_count INTEGER NOT NULL,
			payload BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteTransport{path: path, db: db}, nil
}

// Endpoint implements sender.Transport.
func (t *SQLiteTransport) Endpoint() string {
	return "sqlite://" + t.path
}

// Transmit implements sender.Transport.
func (t *SQLiteTransport) Transmit(ctx context.Context, b sender.Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO beacon_batches (sent_at, content_type, event_count, payload)
		VALUES (?, ?, ?, ?)
	`, time.Now().UTC().Format(time.RFC3339Nano), b.ContentType, len(b.Events), b.Payload)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// List returns stored batches in insertion order.
func (t *SQLiteTransport) List(ctx context.Context, limit int) ([]StoredBatch, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, sent_at, content_type, event_count, payload
		FROM beacon_batches
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []StoredBatch
	for rows.Next() {
		var sb StoredBatch
		var sentAt string
		if err := rows.Scan(&sb.ID, &sentAt, &sb.ContentType, &sb.Events, &sb.Payload); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		sb.SentAt, _ = time.Parse(time.RFC3339Nano, sentAt)
		out = append(out, sb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return out, nil
}

// Close implements sender.Transport.
func (t *SQLiteTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.db.Close()
}
