// Package store provides the SQLite-backed staging ledger of extracted
// records.
//
// Every archive record passes through the store before it is written. The
// pair (model type, model URL) is a natural key: the first writer wins and
// later writers are told the record was already seen. Records are read back
// in pages, in explicit order first and insertion order second, when the
// archive is assembled.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/steveyegge/bbs-exporter/internal/debug"
)

// FileName is the name of the staging database inside the staging
// directory. It is removed before the directory is packed.
const FileName = "db.sqlite3"

// setupWASMCache configures WASM compilation caching so repeated runs skip
// compiling the SQLite module. Falls back to an in-memory cache.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(userCache, "bbs-exporter", "wasm")); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// Record is one extracted resource.
type Record struct {
	ID        int64
	ModelType string
	ModelURL  string
	Data      []byte
	Order     *int
}

// Store is the staging ledger. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	dbPath string

	// mu serializes find-or-create so that two workers racing on the same
	// key cannot both build a payload.
	mu sync.Mutex
}

// New creates a store at dbPath. An existing ledger is dropped.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open staging db: %w", err)
	}

	// Set connection pool limits appropriate for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping staging db: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init staging schema: %w", err)
	}

	return s, nil
}

// initSchema recreates the ledger table.
func (s *Store) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w\nSQL: %s", err, stmt)
		}
	}

	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Remove closes the store and deletes the database file together with its
// WAL side files.
func (s *Store) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove staging db: %w", err)
		}
	}
	return nil
}

// RecordIfAbsent stores payload under (modelType, modelURL) unless a record
// with that key exists. It returns true when the record was written. A nil
// payload is stored as NULL and is never paged out.
func (s *Store) RecordIfAbsent(ctx context.Context, modelType, modelURL string, payload []byte, order *int) (bool, error) {
	return s.RecordFunc(ctx, modelType, modelURL, order, func() ([]byte, error) {
		return payload, nil
	})
}

// RecordFunc is RecordIfAbsent with a lazily built payload. build runs only
// when the key is new, inside the store's critical section. If build fails
// nothing is written and its error is returned.
func (s *Store) RecordFunc(ctx context.Context, modelType, modelURL string, order *int, build func() ([]byte, error)) (bool, error) {
	if modelType == "" || modelURL == "" {
		return false, fmt.Errorf("record %q %q: model type and url are required", modelType, modelURL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return false, errors.New("staging db is closed")
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM extracted_resources WHERE model_type = ? AND model_url = ?`,
		modelType, modelURL).Scan(&id)
	switch {
	case err == nil:
		debug.Info(modelType, modelURL, "already serialized")
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("find %s %s: %w", modelType, modelURL, err)
	}

	payload, err := build()
	if err != nil {
		return false, err
	}

	var data any
	if payload != nil {
		data = string(payload)
	}
	var ord any
	if order != nil {
		ord = *order
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO extracted_resources (model_type, model_url, "order", data) VALUES (?, ?, ?, ?)`,
		modelType, modelURL, ord, data); err != nil {
		return false, fmt.Errorf("insert %s %s: %w", modelType, modelURL, err)
	}

	debug.Info(modelType, modelURL, "serialized to json")
	return true, nil
}

// Page returns page (1-indexed) of the non-null records of modelType,
// ordered by explicit order (records without one last) and then by
// insertion.
func (s *Store) Page(ctx context.Context, modelType string, page, size int) ([]Record, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d: pages start at 1", page)
	}
	if size < 1 {
		return nil, fmt.Errorf("page size %d must be positive", size)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_type, model_url, data, "order"
		FROM extracted_resources
		WHERE model_type = ? AND data IS NOT NULL
		ORDER BY "order" IS NULL, "order" ASC, id ASC
		LIMIT ? OFFSET ?`,
		modelType, size, size*(page-1))
	if err != nil {
		return nil, fmt.Errorf("page %s %d: %w", modelType, page, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r     Record
			data  string
			order sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.ModelType, &r.ModelURL, &data, &order); err != nil {
			return nil, fmt.Errorf("scan %s: %w", modelType, err)
		}
		r.Data = []byte(data)
		if order.Valid {
			o := int(order.Int64)
			r.Order = &o
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Used reports whether anything was recorded.
func (s *Store) Used(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extracted_resources`).Scan(&n); err != nil {
		return false, fmt.Errorf("count records: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of records of modelType, including those without
// a payload.
func (s *Store) Count(ctx context.Context, modelType string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM extracted_resources WHERE model_type = ?`, modelType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", modelType, err)
	}
	return n, nil
}
