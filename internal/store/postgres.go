package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

// PostgresLedger keeps the ledger in Postgres
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the ledger tables
func OpenPostgres(ctx context.Context, dsn string) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger dsn: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ledger connect: %w", err)
	}
	l := &PostgresLedger{pool: pool}
	if err := l.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

func (l *PostgresLedger) initSchema(ctx context.Context) error {
	b := &pgx.Batch{}
	b.Queue(`CREATE TABLE IF NOT EXISTS programs (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		pagination_type TEXT NOT NULL,
		digest TEXT NOT NULL,
		parent_digest TEXT,
		path TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (name, version)
	)`)
	b.Queue(`CREATE TABLE IF NOT EXISTS qa_runs (
		id UUID PRIMARY KEY,
		program_name TEXT NOT NULL,
		program_version INTEGER NOT NULL,
		status TEXT NOT NULL,
		quality_score DOUBLE PRECISION NOT NULL,
		items_file TEXT,
		metadata_file TEXT,
		issues TEXT[],
		repaired_version INTEGER DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`)
	return l.pool.SendBatch(ctx, b).Close()
}

// Close releases the pool
func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}

// RecordProgram stores a program version
func (l *PostgresLedger) RecordProgram(ctx context.Context, rec ProgramRecord) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO programs (id, name, version, strategy, pagination_type, digest, parent_digest, path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Name, rec.Version, rec.Strategy, rec.PaginationType,
		rec.Digest, rec.ParentDigest, rec.Path, rec.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateVersion
	}
	if err != nil {
		return fmt.Errorf("failed to insert program: %w", err)
	}
	return nil
}

// RecordQARun stores a QA run
func (l *PostgresLedger) RecordQARun(ctx context.Context, rec QARunRecord) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO qa_runs (id, program_name, program_version, status, quality_score, items_file, metadata_file, issues, repaired_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.ProgramName, rec.ProgramVersion, rec.Status, rec.QualityScore,
		rec.ItemsFile, rec.MetadataFile, rec.Issues, rec.RepairedVersion, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert qa run: %w", err)
	}
	return nil
}

// History returns program versions and QA runs for name, newest first
func (l *PostgresLedger) History(ctx context.Context, name string, limit int) ([]Entry, error) {
	var entries []Entry

	rows, err := l.pool.Query(ctx, `
		SELECT id::text, version, strategy, pagination_type, digest, COALESCE(parent_digest, ''), created_at
		FROM programs WHERE name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query programs: %w", err)
	}
	for rows.Next() {
		var e Entry
		var strategy, pagination, digest, parent string
		if err := rows.Scan(&e.ID, &e.Version, &strategy, &pagination, &digest, &parent, &e.At); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		e.Kind, e.Name = EntryProgram, name
		e.Detail = programDetail(strategy, pagination, digest, parent)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = l.pool.Query(ctx, `
		SELECT id::text, program_version, status, quality_score, COALESCE(issues, '{}'), repaired_version, created_at
		FROM qa_runs WHERE program_name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query qa runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		var status string
		var score float64
		var issues []string
		var repaired int
		if err := rows.Scan(&e.ID, &e.Version, &status, &score, &issues, &repaired, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan qa run: %w", err)
		}
		e.Kind, e.Name = EntryQA, name
		e.Detail = qaDetail(status, score, strings.Join(issues, ","), repaired)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return newestFirst(entries, limit), nil
}
