package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (records only)
// 1 - Added meta table holding the insertion sequence counter
const currentSchemaVersion = 1

var (
	// ErrClosed is returned by operations on a closed store and delivered
	// to live collections when the store closes.
	ErrClosed = errors.New("store: closed")

	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("store: record not found")
)

// Store provides durable record storage.
// Uses SQLite with WAL mode so other processes can read while it writes.
type Store struct {
	db       *sql.DB
	compiler *querysql.SQLCompiler

	dispatcher   feed.Dispatcher
	pollInterval time.Duration
	ids          ir.IDGenerator
	logger       *slog.Logger

	notifyMu sync.Mutex // held across a write and its notifications

	mu     sync.Mutex
	views  map[*view]struct{}
	closed bool

	stopPoll context.CancelFunc
	pollDone chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithDispatcher sets the dispatcher live collections deliver on.
// Default: feed.Inline.
func WithDispatcher(d feed.Dispatcher) Option {
	return func(s *Store) {
		s.dispatcher = d
	}
}

// WithPollInterval enables detection of commits made by other connections.
// Zero (the default) disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// WithIDGenerator sets the generator for records stored without an id.
// Default: ir.UUIDv7Generator.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and PRAGMA data_version
	// only reports commits from other connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:         db,
		compiler:   querysql.NewSQLCompiler(),
		dispatcher: feed.Inline,
		ids:        ir.UUIDv7Generator{},
		logger:     slog.Default(),
		views:      make(map[*view]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pollInterval > 0 {
		if err := s.startPoller(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close stops change detection, fails every live collection with
// ErrClosed, and closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.stopPoll != nil {
		s.stopPoll()
		<-s.pollDone
	}

	s.notifyMu.Lock()
	s.mu.Lock()
	views := s.takeViews()
	s.mu.Unlock()
	for _, v := range views {
		v.coll.Fail(ErrClosed)
	}
	s.notifyMu.Unlock()

	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 seeds the sequence counter. Databases created before the
// meta table existed continue after their highest stored seq.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO meta (key, value)
		SELECT 'seq', COALESCE(MAX(seq), 0) FROM records
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
