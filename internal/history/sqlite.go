package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps history in a local SQLite file with an FTS5 index.
type SQLiteStore struct {
	db *sqlx.DB
}

type sqliteRow struct {
	ID         string `db:"id"`
	Query      string `db:"query"`
	Response   []byte `db:"response"`
	ToolsUsed  []byte `db:"tools_used"`
	Model      string `db:"model"`
	DurationMS int64  `db:"duration_ms"`
	CreatedAt  int64  `db:"created_at"` // unix millis
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("history store opened", "backend", "sqlite", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			tools_used TEXT NOT NULL DEFAULT '[]',
			model TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS runs_fts USING fts5(
			query,
			topic,
			summary,
			id UNINDEXED,
			tokenize='porter unicode61'
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

// Save inserts the run and its FTS entry in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	respJSON, toolsJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	topic, summary := indexFields(rec.Response)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (id, query, response, tools_used, model, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Query, string(respJSON), string(toolsJSON), rec.Model, rec.DurationMS, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO runs_fts (query, topic, summary, id) VALUES (?, ?, ?, ?)`,
		rec.Query, topic, summary, rec.ID.String())
	if err != nil {
		return fmt.Errorf("insert fts: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var row sqliteRow
	err := s.db.GetContext(ctx, &row, `SELECT id, query, response, tools_used, model, duration_ms, created_at
		FROM runs WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	rec, err := row.toRecord()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, query, response, tools_used, model, duration_ms, created_at
		FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return sqliteRecords(rows), nil
}

// Search ranks matches with BM25. Every term must match, as a prefix.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	match := ftsMatchExpr(query)
	if match == "" {
		return s.List(ctx, limit)
	}

	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows, `SELECT r.id, r.query, r.response, r.tools_used, r.model, r.duration_ms, r.created_at
		FROM runs_fts JOIN runs r ON r.id = runs_fts.id
		WHERE runs_fts MATCH ?
		ORDER BY runs_fts.rank
		LIMIT ?`, match, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}
	return sqliteRecords(rows), nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ftsMatchExpr quotes each term so user input cannot inject FTS5 syntax.
func ftsMatchExpr(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.IndexFunc(f, isWordRune) < 0 {
			continue
		}
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"*`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (r sqliteRow) toRecord() (Record, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Record{}, fmt.Errorf("parse id %q: %w", r.ID, err)
	}
	rec := Record{
		ID:         id,
		Query:      r.Query,
		Model:      r.Model,
		DurationMS: r.DurationMS,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}
	if err := decodeInto(&rec, r.Response, r.ToolsUsed); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func sqliteRecords(rows []sqliteRow) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			slog.Warn("skipping unreadable history row", "id", r.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}
