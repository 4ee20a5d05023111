package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// PGStore keeps history in Postgres, for deployments with several gateways.
type PGStore struct {
	db *sqlx.DB
}

type pgRow struct {
	ID         uuid.UUID `db:"id"`
	Query      string    `db:"query"`
	Response   []byte    `db:"response"`
	ToolsUsed  []byte    `db:"tools_used"`
	Model      string    `db:"model"`
	DurationMS int64     `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

// NewPGStore connects with the pgx driver and creates the schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	s := &PGStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("history store opened", "backend", "postgres", "dsn_len", len(dsn))
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS research_runs (
			id UUID PRIMARY KEY,
			query TEXT NOT NULL,
			response JSONB NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			tools_used JSONB NOT NULL DEFAULT '[]',
			model TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_research_runs_created ON research_runs (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (s *PGStore) Save(ctx context.Context, rec *Record) error {
	respJSON, toolsJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	topic, summary := indexFields(rec.Response)

	_, err = s.db.ExecContext(ctx, `INSERT INTO research_runs
		(id, query, response, topic, summary, tools_used, model, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Query, string(respJSON), topic, summary, string(toolsJSON), rec.Model, rec.DurationMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const pgSelectColumns = `SELECT id, query, response, tools_used, model, duration_ms, created_at FROM research_runs`

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var row pgRow
	err := s.db.GetContext(ctx, &row, pgSelectColumns+` WHERE id = $1`, id)
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

func (s *PGStore) List(ctx context.Context, limit int) ([]Record, error) {
	var rows []pgRow
	if err := s.db.SelectContext(ctx, &rows, pgSelectColumns+` ORDER BY created_at DESC LIMIT $1`, clampLimit(limit)); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return pgRecords(rows), nil
}

// Search requires every term to appear in the query, topic or summary.
func (s *PGStore) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return s.List(ctx, limit)
	}

	var where []string
	var args []any
	for _, term := range terms {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(query ILIKE $%d OR topic ILIKE $%d OR summary ILIKE $%d)", n, n, n))
	}
	args = append(args, clampLimit(limit))
	q := fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC LIMIT $%d", pgSelectColumns, strings.Join(where, " AND "), len(args))

	var rows []pgRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}
	return pgRecords(rows), nil
}

func (s *PGStore) Close() error { return s.db.Close() }

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r pgRow) toRecord() (Record, error) {
	rec := Record{
		ID:         r.ID,
		Query:      r.Query,
		Model:      r.Model,
		DurationMS: r.DurationMS,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if err := decodeInto(&rec, r.Response, r.ToolsUsed); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func pgRecords(rows []pgRow) []Record {
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
