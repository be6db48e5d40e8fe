// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/persistence/sqlite"
)

const schemaVersion = 2

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB   *sql.DB
	opts options
}

// NewSqliteStore opens (and migrates) a SQLite session database.
func NewSqliteStore(dbPath string, opts ...Option) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db, opts: buildOptions(opts)}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		audio_file_name TEXT NOT NULL DEFAULT '',
		audio_size INTEGER NOT NULL,
		status TEXT NOT NULL,
		transcript TEXT NOT NULL,
		bot_response TEXT NOT NULL,
		is_urgent INTEGER NOT NULL DEFAULT 0,
		safety_flags_json TEXT NOT NULL DEFAULT '[]',
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_patient ON sessions(patient_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at_ms DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_urgent ON sessions(is_urgent);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}

	// v2 adds the status index used by the recovery sweep.
	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status, updated_at_ms)"); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

const selectColumns = `id, patient_id, audio_file_name, audio_size, status, transcript, bot_response,
	is_urgent, safety_flags_json, created_at_ms, updated_at_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		rec       model.Session
		status    string
		urgent    int
		flagsJSON string
		createdMS int64
		updatedMS int64
	)
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.AudioFileName, &rec.AudioSize, &status,
		&rec.Transcript, &rec.BotResponse, &urgent, &flagsJSON, &createdMS, &updatedMS)
	if err != nil {
		return nil, err
	}
	rec.Status = model.Status(status)
	rec.IsUrgent = urgent != 0
	if err := json.Unmarshal([]byte(flagsJSON), &rec.SafetyFlags); err != nil {
		return nil, fmt.Errorf("decode safety flags for %s: %w", rec.ID, err)
	}
	if rec.SafetyFlags == nil {
		rec.SafetyFlags = []string{}
	}
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SqliteStore) Create(ctx context.Context, in model.NewSession) (*model.Session, error) {
	rec := s.opts.newRecord(in)
	flagsJSON, err := json.Marshal(rec.SafetyFlags)
	if err != nil {
		return nil, err
	}
	_, err = s.DB.ExecContext(ctx, `
	INSERT INTO sessions (`+selectColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PatientID, rec.AudioFileName, rec.AudioSize, string(rec.Status), rec.Transcript,
		rec.BotResponse, boolInt(rec.IsUrgent), string(flagsJSON), rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: create: %w", err)
	}
	return rec, nil
}

func (s *SqliteStore) Update(ctx context.Context, id string, p model.Patch) (*model.Session, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanSession(tx.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM sessions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite store: update %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: update %s: %w", id, err)
	}

	changed, err := model.Apply(rec, p, s.opts.stamp())
	if err != nil {
		return nil, err
	}
	if !changed {
		return rec, nil
	}

	flagsJSON, err := json.Marshal(rec.SafetyFlags)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			status = ?, transcript = ?, bot_response = ?, is_urgent = ?,
			safety_flags_json = ?, updated_at_ms = ?
		WHERE id = ?`,
		string(rec.Status), rec.Transcript, rec.BotResponse, boolInt(rec.IsUrgent),
		string(flagsJSON), rec.UpdatedAt.UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: update %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite store: update %s: commit: %w", id, err)
	}
	return rec, nil
}

func (s *SqliteStore) Get(ctx context.Context, id string) (*model.Session, error) {
	rec, err := scanSession(s.DB.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM sessions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite store: get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get %s: %w", id, err)
	}
	return rec, nil
}

func (s *SqliteStore) ListRecent(ctx context.Context, limit int) ([]*model.Session, error) {
	query := "SELECT " + selectColumns + " FROM sessions ORDER BY created_at_ms DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

func (s *SqliteStore) ListByStatus(ctx context.Context, statuses ...model.Status) ([]*model.Session, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	query := "SELECT " + selectColumns + " FROM sessions WHERE status IN (" +
		strings.Join(placeholders, ",") + ") ORDER BY created_at_ms DESC, id DESC"
	return s.query(ctx, query, args...)
}

func (s *SqliteStore) query(ctx context.Context, query string, args ...any) ([]*model.Session, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	defer rows.Close()

	var list []*model.Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: list: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

var _ Store = (*SqliteStore)(nil)
