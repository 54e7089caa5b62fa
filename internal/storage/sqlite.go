package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fedbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertFederation(ctx context.Context, f Federation) error {
	if f.AddedAt.IsZero() {
		f.AddedAt = time.Now()
	}
	// Re-registering keeps the original row (and thus the listing position).
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO federations(id, name, kind, added_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, kind=excluded.kind`,
		f.ID, f.Name, f.Kind, f.AddedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) DeleteFederation(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM federations WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) DeleteAllFederations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM federations`)
	return err
}

func (s *sqliteStore) ListFederations(ctx context.Context) ([]Federation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, added_at FROM federations ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Federation
	for rows.Next() {
		var f Federation
		var at string
		if err := rows.Scan(&f.ID, &f.Name, &f.Kind, &at); err != nil {
			return nil, err
		}
		f.AddedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertApprover(ctx context.Context, a Approver) error {
	if a.AddedAt.IsZero() {
		a.AddedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvers(id, name, added_at) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name`,
		a.ID, a.Name, a.AddedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) DeleteApprover(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM approvers WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) IsApprover(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM approvers WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) ListApprovers(ctx context.Context) ([]Approver, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, added_at FROM approvers ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Approver
	for rows.Next() {
		var a Approver
		var at string
		if err := rows.Scan(&a.ID, &a.Name, &at); err != nil {
			return nil, err
		}
		a.AddedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, a)
	}
	return out, rows.Err()
}
