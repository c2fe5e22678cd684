// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseFileName is the SQLite file inside the data directory.
const DatabaseFileName = "resolver.db"

// Storage provides persistent storage for the resolver.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The database holds unrevealed secrets.
	if err := os.Chmod(dbPath, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restrict database permissions: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- =========================================================================
	-- Orders
	-- =========================================================================

	CREATE TABLE IF NOT EXISTS orders (
		order_hash TEXT PRIMARY KEY,
		hash_scheme TEXT NOT NULL,

		-- Order fields (amounts as decimal strings, salt as hex)
		maker TEXT NOT NULL,
		maker_asset TEXT NOT NULL,
		taker_asset TEXT NOT NULL,
		making_amount TEXT NOT NULL,
		taking_amount TEXT NOT NULL,
		receiver TEXT NOT NULL,
		salt TEXT NOT NULL,
		maker_traits TEXT NOT NULL DEFAULT '0',

		-- Hash lock and secret. The secret is blanked once the order completes.
		hash_lock TEXT NOT NULL,
		secret TEXT,
		secret_cleared INTEGER NOT NULL DEFAULT 0,

		-- Packed timelocks (decimal)
		src_timelocks TEXT,
		dst_timelocks TEXT,

		-- Request
		from_network TEXT NOT NULL,
		to_network TEXT NOT NULL,
		from_token TEXT NOT NULL,
		to_token TEXT NOT NULL,
		amount TEXT NOT NULL,

		mode TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',

		-- Chain references
		pull_tx_hash TEXT,
		src_tx_hash TEXT,
		dst_tx_hash TEXT,
		src_escrow TEXT,
		dst_escrow TEXT,
		payout_tx_hash TEXT,
		claim_tx_hash TEXT,
		cancel_tx_hashes TEXT,

		-- Failure tracking
		partial_settlement INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT,
		error TEXT,

		-- Timing
		created_at INTEGER NOT NULL,
		updated_at INTEGER,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
	CREATE INDEX IF NOT EXISTS idx_orders_networks ON orders(from_network, to_network);

	-- =========================================================================
	-- Order events (audit trail of everything the orchestrator and monitor did)
	-- =========================================================================

	CREATE TABLE IF NOT EXISTS order_events (
		id TEXT PRIMARY KEY,
		order_hash TEXT NOT NULL,
		event_type TEXT NOT NULL,
		data TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_hash, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func timeToUnixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixOrZero(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
