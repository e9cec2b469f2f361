package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"localnotify/internal/localnotify"
	logx "localnotify/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite wants a single writer, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Put(ctx context.Context, rec localnotify.WireRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications(name, seq, body, updated_at)
		 VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM notifications), ?, ?)
		 ON CONFLICT(name) DO UPDATE SET seq=excluded.seq, body=excluded.body, updated_at=excluded.updated_at`,
		rec.Name, string(body), time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) Get(ctx context.Context, name string) (localnotify.WireRecord, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM notifications WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return localnotify.WireRecord{}, false, nil
	}
	if err != nil {
		return localnotify.WireRecord{}, false, err
	}
	var rec localnotify.WireRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return localnotify.WireRecord{}, false, fmt.Errorf("decode %q: %w", name, err)
	}
	return rec, true, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]localnotify.WireRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, body FROM notifications ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []localnotify.WireRecord
	for rows.Next() {
		var name, body string
		if err := rows.Scan(&name, &body); err != nil {
			return nil, err
		}
		var rec localnotify.WireRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			s.log.Warn("skipping undecodable row", logx.String("name", name), logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notifications`)
	return err
}
