package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger keeps the ledger in a local SQLite file
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the ledger at path
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	l := &SQLiteLedger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS programs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		pagination_type TEXT NOT NULL,
		digest TEXT NOT NULL,
		parent_digest TEXT,
		path TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (name, version)
	);
	CREATE TABLE IF NOT EXISTS qa_runs (
		id TEXT PRIMARY KEY,
		program_name TEXT NOT NULL,
		program_version INTEGER NOT NULL,
		status TEXT NOT NULL,
		quality_score REAL NOT NULL,
		items_file TEXT,
		metadata_file TEXT,
		issues TEXT,
		repaired_version INTEGER DEFAULT 0,
		created_at TEXT NOT NULL
	);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database connection
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// RecordProgram stores a program version
func (l *SQLiteLedger) RecordProgram(ctx context.Context, rec ProgramRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO programs (id, name, version, strategy, pagination_type, digest, parent_digest, path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Name, rec.Version, rec.Strategy, rec.PaginationType,
		rec.Digest, rec.ParentDigest, rec.Path, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateVersion
		}
		return fmt.Errorf("failed to insert program: %w", err)
	}
	return nil
}

// RecordQARun stores a QA run
func (l *SQLiteLedger) RecordQARun(ctx context.Context, rec QARunRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO qa_runs (id, program_name, program_version, status, quality_score, items_file, metadata_file, issues, repaired_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.ProgramName, rec.ProgramVersion, rec.Status, rec.QualityScore,
		rec.ItemsFile, rec.MetadataFile, strings.Join(rec.Issues, ","), rec.RepairedVersion,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert qa run: %w", err)
	}
	return nil
}

// History returns program versions and QA runs for name, newest first
func (l *SQLiteLedger) History(ctx context.Context, name string, limit int) ([]Entry, error) {
	var entries []Entry

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, version, strategy, pagination_type, digest, COALESCE(parent_digest, ''), created_at
		FROM programs WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query programs: %w", err)
	}
	for rows.Next() {
		var id, strategy, pagination, digest, parent, created string
		var version int
		if err := rows.Scan(&id, &version, &strategy, &pagination, &digest, &parent, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		entries = append(entries, Entry{
			Kind:    EntryProgram,
			ID:      id,
			Name:    name,
			Version: version,
			Detail:  programDetail(strategy, pagination, digest, parent),
			At:      parseTime(created),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = l.db.QueryContext(ctx, `
		SELECT id, program_version, status, quality_score, COALESCE(issues, ''), repaired_version, created_at
		FROM qa_runs WHERE program_name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query qa runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, status, issues, created string
		var version, repaired int
		var score float64
		if err := rows.Scan(&id, &version, &status, &score, &issues, &repaired, &created); err != nil {
			return nil, fmt.Errorf("failed to scan qa run: %w", err)
		}
		entries = append(entries, Entry{
			Kind:    EntryQA,
			ID:      id,
			Name:    name,
			Version: version,
			Detail:  qaDetail(status, score, issues, repaired),
			At:      parseTime(created),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return newestFirst(entries, limit), nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
