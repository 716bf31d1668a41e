package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteStore is a Store backed by a single sqlite database file (or
// ":memory:"), using the cgo-free modernc.org/sqlite driver so the module
// keeps building without a C toolchain.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a sqlite-backed Store at path
// and runs its schema migration.
func NewSQLiteStore(path string, config *SQLiteConfig) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			path_key   TEXT PRIMARY KEY,
			path_json  TEXT NOT NULL,
			kind       TEXT NOT NULL,
			data       BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (s *sqliteStore) Read(ctx context.Context, path ...string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, data, updated_at FROM records WHERE path_key = ?`, pathKey(path))

	var kind string
	var data []byte
	var updatedAt time.Time
	if err := row.Scan(&kind, &data, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	return &Record{Path: clonePath(path), Kind: kind, Data: data, UpdatedAt: updatedAt}, nil
}

func (s *sqliteStore) Write(ctx context.Context, rec *Record) error {
	if rec == nil || len(rec.Path) == 0 {
		return ErrNotFound
	}
	pathJSON, err := encodePath(rec.Path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (path_key, path_json, kind, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path_key) DO UPDATE SET
			kind = excluded.kind,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, pathKey(rec.Path), pathJSON, rec.Kind, rec.Data, now)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (s *sqliteStore) Remove(ctx context.Context, path ...string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE path_key = ?`, pathKey(path))
	if err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context, prefix ...string) ([]*Record, error) {
	var rows *sql.Rows
	var err error
	if len(prefix) == 0 {
		rows, err = s.db.QueryContext(ctx,
			`SELECT path_json, kind, data, updated_at FROM records ORDER BY path_key`)
	} else {
		key := pathKey(prefix)
		rows, err = s.db.QueryContext(ctx, `
			SELECT path_json, kind, data, updated_at FROM records
			WHERE path_key = ? OR path_key LIKE ? ESCAPE '\'
			ORDER BY path_key
		`, key, likeEscape(key)+"\x1f%")
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	matches := make([]*Record, 0)
	for rows.Next() {
		var pathJSON, kind string
		var data []byte
		var updatedAt time.Time
		if err := rows.Scan(&pathJSON, &kind, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		path, err := decodePath(pathJSON)
		if err != nil {
			return nil, fmt.Errorf("decode path: %w", err)
		}
		matches = append(matches, &Record{Path: path, Kind: kind, Data: data, UpdatedAt: updatedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return matches, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

func encodePath(path []string) (string, error) {
	b, err := json.Marshal(path)
	return string(b), err
}

func decodePath(encoded string) ([]string, error) {
	var path []string
	err := json.Unmarshal([]byte(encoded), &path)
	return path, err
}
