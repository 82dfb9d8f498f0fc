package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"repolens/internal/artifact"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	Postgres Dialect = "pgx"
	SQLite   Dialect = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS repo_analyses (
  repo_url TEXT NOT NULL,
  user_id TEXT NOT NULL,
  document TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (repo_url, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS usage_counters (
  user_id TEXT PRIMARY KEY,
  uses BIGINT NOT NULL DEFAULT 0
)`,
}

// SQLStore is a Store over database/sql. Postgres goes through the pgx stdlib
// driver; SQLite (modernc) serves local runs and tests.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect

	schemaMu    sync.Mutex
	schemaReady bool
}

// setupTimeout bounds one-time schema and bucket creation, which runs detached
// from the caller that happened to trigger it.
const setupTimeout = 30 * time.Second

// NewPostgres opens and pings dsn.
func NewPostgres(dsn string) (*SQLStore, error) {
	return Open(Postgres, dsn)
}

// NewSQLite opens a database file; ":memory:" gives a private in-memory database.
func NewSQLite(path string) (*SQLStore, error) {
	s, err := Open(SQLite, path)
	if err != nil {
		return nil, err
	}
	// A second connection to ":memory:" would see an empty database.
	s.db.SetMaxOpenConns(1)
	return s, nil
}

func Open(dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(string(dialect), strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), setupTimeout)
	defer cancel()
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			// Not remembered: the next call tries again.
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.schemaReady = true
	return nil
}

// rebind rewrites $n placeholders for drivers that only take "?".
func (s *SQLStore) rebind(query string) string {
	if s.dialect != SQLite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if _, err := strconv.Atoi(query[i+1 : j]); err == nil {
				b.WriteByte('?')
				i = j - 1
				continue
			}
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLStore) Get(ctx context.Context, repoURL, userID string) (artifact.CompositeAnalysis, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return artifact.CompositeAnalysis{}, err
	}
	u, id := normalizeKey(repoURL, userID)
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT document FROM repo_analyses
WHERE repo_url = $1 AND user_id = $2`), u, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.CompositeAnalysis{}, errNotFound(u, id)
	}
	if err != nil {
		return artifact.CompositeAnalysis{}, err
	}
	var doc artifact.CompositeAnalysis
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return artifact.CompositeAnalysis{}, fmt.Errorf("decode analysis %s: %w", u, err)
	}
	return doc, nil
}

func (s *SQLStore) Put(ctx context.Context, repoURL, userID string, doc artifact.CompositeAnalysis) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	u, id := normalizeKey(repoURL, userID)
	_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO repo_analyses (repo_url, user_id, document, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (repo_url, user_id)
DO UPDATE SET document = EXCLUDED.document,
  updated_at = EXCLUDED.updated_at`),
		u, id, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLStore) IncrementUsageCounter(ctx context.Context, userID string) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	_, id := normalizeKey("", userID)
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
INSERT INTO usage_counters (user_id, uses)
VALUES ($1, 1)
ON CONFLICT (user_id)
DO UPDATE SET uses = usage_counters.uses + 1
RETURNING uses`), id).Scan(&n)
	return n, err
}

func (s *SQLStore) GetUsageCounter(ctx context.Context, userID string) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	_, id := normalizeKey("", userID)
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT uses FROM usage_counters WHERE user_id = $1`), id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}
