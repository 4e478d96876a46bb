package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/durable/internal/storage"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed storage engine. Every record is one row keyed by
// (namespace, key), so a Put is a single-row UPSERT and atomic on its own.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) a SQLite database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	log.Debug().Msgf("storage.sqlite.Open path=%q", cleanPath)
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS object_records (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Handle returns the view of one namespace.
func (s *Store) Handle(namespace string) storage.Handle {
	return &Handle{db: s.db, namespace: namespace}
}

// Close closes the underlying database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Handle is a namespace-scoped view of a Store.
type Handle struct {
	db        *sql.DB
	namespace string
}

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Handle  = (*Handle)(nil)
	_ storage.Lister  = (*Handle)(nil)
)

func (h *Handle) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := h.check(key); err != nil {
		return nil, false, err
	}
	var value []byte
	err := h.db.QueryRowContext(ctx,
		`SELECT value FROM object_records WHERE namespace = ? AND key = ?`,
		h.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &storage.KeyError{Op: "get", Key: key, Err: err}
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (h *Handle) Put(ctx context.Context, key string, value []byte) error {
	if err := h.check(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO object_records (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		h.namespace, key, value, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return &storage.KeyError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (h *Handle) Delete(ctx context.Context, key string) error {
	if err := h.check(key); err != nil {
		return err
	}
	_, err := h.db.ExecContext(ctx,
		`DELETE FROM object_records WHERE namespace = ? AND key = ?`,
		h.namespace, key,
	)
	if err != nil {
		return &storage.KeyError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// List returns keys with the given prefix in ascending order.
func (h *Handle) List(ctx context.Context, prefix string) ([]string, error) {
	if err := storage.ValidateNamespace(h.namespace); err != nil {
		return nil, err
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT key FROM object_records
		WHERE namespace = ? AND substr(key, 1, length(?)) = ?
		ORDER BY key`,
		h.namespace, prefix, prefix,
	)
	if err != nil {
		return nil, &storage.KeyError{Op: "list", Key: prefix, Err: err}
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &storage.KeyError{Op: "list", Key: prefix, Err: err}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.KeyError{Op: "list", Key: prefix, Err: err}
	}
	return keys, nil
}

func (h *Handle) check(key string) error {
	if err := storage.ValidateNamespace(h.namespace); err != nil {
		return err
	}
	return storage.ValidateKey(key)
}
