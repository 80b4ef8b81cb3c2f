// Package sqlite persists hook event history in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrClosed is returned by queries issued after Close.
var ErrClosed = errors.New("history store closed")

// StoreConfig holds configuration for the database store.
type StoreConfig struct {
	Path     string
	MaxConns int
	WALMode  bool
}

func (c StoreConfig) inMemory() bool {
	return c.Path == MemoryPath
}

// dsn builds a modernc connection string. Pragmas are applied to every
// pooled connection.
func (c StoreConfig) dsn() string {
	pragmas := []string{"busy_timeout(5000)", "synchronous(NORMAL)", "foreign_keys(ON)"}
	if c.WALMode && !c.inMemory() {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}

	var b strings.Builder
	if c.inMemory() {
		b.WriteString("file::memory:")
	} else {
		b.WriteString("file:" + c.Path)
	}
	for i, p := range pragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=" + p)
	}
	return b.String()
}

// Store owns the database handle and the statements prepared against it.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

// NewStore opens (creating if needed) the database at cfg.Path and brings
// its schema up to date.
func NewStore(cfg StoreConfig) (*Store, error) {
	if !cfg.inMemory() {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conns := cfg.MaxConns
	switch {
	case cfg.inMemory():
		// each connection to :memory: is its own database
		conns = 1
	case conns <= 0:
		conns = 4
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: cfg.Path, stmts: make(map[string]*sql.Stmt)}, nil
}

// Path returns the database location the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close releases prepared statements and the database handle. It is safe to
// call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stmts == nil {
		return nil
	}
	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}
	s.stmts = nil
	return s.db.Close()
}

func (s *Store) prepared(ctx context.Context, query string) (*sql.Stmt, error) {
	s.mu.RLock()
	stmt, ok := s.stmts[query]
	closed := s.stmts == nil
	s.mu.RUnlock()
	switch {
	case closed:
		return nil, ErrClosed
	case ok:
		return stmt, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stmts == nil {
		return nil, ErrClosed
	}
	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	s.stmts[query] = stmt
	return stmt, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, err := s.prepared(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := s.prepared(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

func (s *Store) queryInt(ctx context.Context, query string, args ...any) (int64, error) {
	stmt, err := s.prepared(ctx, query)
	if err != nil {
		return 0, err
	}
	var n int64
	err = stmt.QueryRowContext(ctx, args...).Scan(&n)
	return n, err
}
