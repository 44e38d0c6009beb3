package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultSQLitePath is the on-disk cache location used when none is configured.
const DefaultSQLitePath = ".cache/responses_cache.db"

// SQLiteStore persists page responses in a local SQLite database so an
// interrupted export can replay already-fetched pages on the next run.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string

	getStmt *sql.Stmt
	setStmt *sql.Stmt
}

// sqliteDSN builds a file: URI for dbPath. The path is percent-encoded so
// '?', '#' and '%' in it are not read as URI delimiters.
func sqliteDSN(dbPath string) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(dbPath),
		OmitHost: true,
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	}
	return u.String()
}

// OpenSQLite opens (or creates) the cache database at dbPath.
// Missing parent directories are created.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = DefaultSQLitePath
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			CacheErrors.WithLabelValues("open").Inc()
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("prepare cache statements: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS page_responses (
		cache_key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		status_code INTEGER NOT NULL,
		cached_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT data, status_code, cached_at
		FROM page_responses
		WHERE cache_key = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}

	s.setStmt, err = s.db.Prepare(`
		INSERT INTO page_responses (cache_key, data, status_code, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare set: %w", err)
	}

	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *SQLiteStore) Get(ctx context.Context, key CacheKey) (*Entry, error) {
	var (
		entry    Entry
		cachedAt int64
	)

	err := s.getStmt.QueryRowContext(ctx, key.String()).Scan(&entry.Data, &entry.StatusCode, &cachedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			CacheMisses.WithLabelValues(BackendSQLite).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("sqlite get: %w", err)
	}

	if len(entry.Data) == 0 {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: empty body for %s", ErrInvalidEntry, key)
	}

	entry.CachedAt = time.Unix(0, cachedAt).UTC()
	CacheHits.WithLabelValues(BackendSQLite).Inc()
	return &entry, nil
}

// Set stores a cache entry. An existing row for the key is left untouched.
func (s *SQLiteStore) Set(ctx context.Context, key CacheKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	cachedAt := entry.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now().UTC()
	}

	res, err := s.setStmt.ExecContext(ctx, key.String(), entry.Data, entry.StatusCode, cachedAt.UnixNano())
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("sqlite set: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		CacheWrites.WithLabelValues(BackendSQLite).Inc()
		CacheSize.WithLabelValues(BackendSQLite).Add(float64(len(entry.Data)))
	}
	return nil
}

// Count returns the number of cached pages.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

// Close closes prepared statements and the database.
func (s *SQLiteStore) Close() error {
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	if s.setStmt != nil {
		s.setStmt.Close()
	}
	return s.db.Close()
}
