package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/types"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps builds and their errors in SQLite
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, persistErr("open", 0, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, persistErr("open", 0, fmt.Errorf("open sqlite database: %w", err))
	}
	// A single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, persistErr("open", 0, fmt.Errorf("initialize schema: %w", err))
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER,
		branch TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_project_branch ON builds(project_id, branch);
	CREATE TABLE IF NOT EXISTS build_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id INTEGER NOT NULL REFERENCES builds(id),
		plugin TEXT NOT NULL,
		message TEXT NOT NULL,
		severity INTEGER NOT NULL,
		file TEXT NOT NULL DEFAULT '',
		begin_line INTEGER NOT NULL DEFAULT 0,
		end_line INTEGER NOT NULL DEFAULT 0,
		create_date INTEGER NOT NULL,
		hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_build_errors_build_id ON build_errors(build_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads a build and its errors
func (s *SQLiteStore) Load(ctx context.Context, id int64) (*build.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.load(ctx, id)
	return rec, persistErr("load", id, err)
}

func (s *SQLiteStore) load(ctx context.Context, id int64) (*build.Record, error) {
	var data string
	var version int64
	err := s.db.QueryRowContext(ctx, "SELECT data, version FROM builds WHERE id = ?", id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query build: %w", err)
	}

	rec := &build.Record{}
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, fmt.Errorf("decode build: %w", err)
	}
	rec.SetID(id)
	rec.SetVersion(version)

	rows, err := s.db.QueryContext(ctx,
		"SELECT plugin, message, severity, file, begin_line, end_line, create_date FROM build_errors WHERE build_id = ? ORDER BY id",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query build errors: %w", err)
	}
	defer rows.Close()

	errs, err := scanErrors(rows)
	if err != nil {
		return nil, err
	}
	rec.RestoreErrors(errs)
	return rec, nil
}

func scanErrors(rows *sql.Rows) ([]build.Error, error) {
	var errs []build.Error
	for rows.Next() {
		var e build.Error
		var severity int
		var created int64
		if err := rows.Scan(&e.Plugin, &e.Message, &severity, &e.File, &e.BeginLine, &e.EndLine, &created); err != nil {
			return nil, fmt.Errorf("scan build error: %w", err)
		}
		e.Severity = types.Severity(severity)
		e.CreateDate = time.Unix(0, created)
		errs = append(errs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build errors: %w", err)
	}
	return errs, nil
}

// Save inserts or updates rec in a single transaction
func (s *SQLiteStore) Save(ctx context.Context, rec *build.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("save", rec.ID(), fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	snapshot := rec.Clone()
	if snapshot.HasID() {
		err = s.update(ctx, tx, snapshot, rec.Version())
	} else {
		err = s.insert(ctx, tx, snapshot)
	}
	if err != nil {
		return persistErr("save", snapshot.ID(), err)
	}

	if err := s.replaceErrors(ctx, tx, snapshot); err != nil {
		return persistErr("save", snapshot.ID(), err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr("save", snapshot.ID(), fmt.Errorf("commit: %w", err))
	}

	if !rec.HasID() {
		rec.SetID(snapshot.ID())
	}
	rec.SetVersion(snapshot.Version())
	return nil
}

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, snapshot *build.Record) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO builds (project_id, branch, status, version, data) VALUES (?, ?, ?, 1, '{}')",
		snapshot.ProjectID(), snapshot.Branch(), int(snapshot.Status()),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read build id: %w", err)
	}
	snapshot.SetID(id)
	snapshot.SetVersion(1)

	data, err := encodeRecord(snapshot)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE builds SET data = ? WHERE id = ?", data, id); err != nil {
		return fmt.Errorf("store build data: %w", err)
	}
	return nil
}

func (s *SQLiteStore) update(ctx context.Context, tx *sql.Tx, snapshot *build.Record, expected int64) error {
	id := snapshot.ID()
	snapshot.SetVersion(expected + 1)

	data, err := encodeRecord(snapshot)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE builds SET project_id = ?, branch = ?, status = ?, version = ?, data = ? WHERE id = ? AND version = ?",
		snapshot.ProjectID(), snapshot.Branch(), int(snapshot.Status()), expected+1, data, id, expected,
	)
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current int64
	err = tx.QueryRowContext(ctx, "SELECT version FROM builds WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read build version: %w", err)
	}
	return fmt.Errorf("%w: build %d is at version %d, have %d", ErrConflict, id, current, expected)
}

func (s *SQLiteStore) replaceErrors(ctx context.Context, tx *sql.Tx, snapshot *build.Record) error {
	id := snapshot.ID()
	if _, err := tx.ExecContext(ctx, "DELETE FROM build_errors WHERE build_id = ?", id); err != nil {
		return fmt.Errorf("clear build errors: %w", err)
	}
	for _, e := range snapshot.Errors() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO build_errors (build_id, plugin, message, severity, file, begin_line, end_line, create_date, hash) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			id, e.Plugin, e.Message, int(e.Severity), e.File, e.BeginLine, e.EndLine, e.CreateDate.UnixNano(), e.Hash(),
		)
		if err != nil {
			return fmt.Errorf("insert build error: %w", err)
		}
	}
	return nil
}

// encodeRecord serialises the record without its errors, which live in
// the build_errors table
func encodeRecord(rec *build.Record) (string, error) {
	c := rec.Clone()
	c.RestoreErrors(nil)
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode build: %w", err)
	}
	return string(data), nil
}

// Previous returns the latest finished build of the same project and branch
func (s *SQLiteStore) Previous(ctx context.Context, rec *build.Record) (*build.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id FROM builds WHERE project_id = ? AND branch = ? AND status IN (?, ?)"
	args := []interface{}{rec.ProjectID(), rec.Branch(), int(types.StatusSuccess), int(types.StatusFailed)}
	if rec.HasID() {
		query += " AND id < ?"
		args = append(args, rec.ID())
	}
	query += " ORDER BY id DESC LIMIT 1"

	var id int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("history", rec.ID(), fmt.Errorf("query previous build: %w", err))
	}

	prev, err := s.load(ctx, id)
	return prev, persistErr("history", id, err)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
