// Package store keeps the run ledger: generated program versions with their
// lineage and the QA runs made against them.
package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/sitescout/internal/model"
)

// ErrDuplicateVersion means a program name/version pair is already recorded
var ErrDuplicateVersion = errors.New("program version already recorded")

// Ledger records program versions and QA runs
type Ledger interface {
	RecordProgram(ctx context.Context, rec ProgramRecord) error
	RecordQARun(ctx context.Context, rec QARunRecord) error
	History(ctx context.Context, name string, limit int) ([]Entry, error)
	Close() error
}

// ProgramRecord is one generated or repaired program version
type ProgramRecord struct {
	ID             uuid.UUID
	Name           string
	Version        int
	Strategy       string
	PaginationType string
	Digest         string
	ParentDigest   string
	Path           string
	CreatedAt      time.Time
}

// QARunRecord is one QA run against a program's output
type QARunRecord struct {
	ID              uuid.UUID
	ProgramName     string
	ProgramVersion  int
	Status          string
	QualityScore    float64
	ItemsFile       string
	MetadataFile    string
	Issues          []string
	RepairedVersion int
	CreatedAt       time.Time
}

// Entry kinds
const (
	EntryProgram = "program"
	EntryQA      = "qa"
)

// Entry is one line of a program's history, newest first
type Entry struct {
	Kind    string    `json:"kind"`
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Version int       `json:"version"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

// Open picks the backend from the DSN: postgres:// and postgresql:// URLs use
// Postgres, anything else is a SQLite path. An empty DSN disables the ledger
// and returns nil.
func Open(ctx context.Context, dsn string) (Ledger, error) {
	switch {
	case dsn == "":
		return nil, nil
	case isPostgres(dsn):
		l, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		l, err := OpenSQLite(strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// NewProgramRecord builds a ledger record for a program written to path
func NewProgramRecord(p *model.ExtractionProgram, path string) ProgramRecord {
	return ProgramRecord{
		ID:             uuid.New(),
		Name:           p.Name,
		Version:        p.Version,
		Strategy:       string(p.Strategy),
		PaginationType: string(p.PaginationType),
		Digest:         p.Digest,
		ParentDigest:   p.ParentDigest,
		Path:           path,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewQARunRecord builds a ledger record for a QA report
func NewQARunRecord(name string, version int, r *model.QAReport) QARunRecord {
	rec := QARunRecord{
		ID:             uuid.New(),
		ProgramName:    name,
		ProgramVersion: version,
		Status:         string(r.Status),
		QualityScore:   r.DataQualityScore,
		ItemsFile:      r.ItemsFile,
		MetadataFile:   r.MetadataFile,
		CreatedAt:      time.Now().UTC(),
	}
	for _, c := range r.RootCauses {
		rec.Issues = append(rec.Issues, c.Issue)
	}
	if r.AutoRefactor != nil {
		rec.RepairedVersion = r.AutoRefactor.Version
	}
	return rec
}

func programDetail(strategy, pagination, digest, parent string) string {
	d := strategy + "/" + pagination + " digest=" + shortDigest(digest)
	if parent != "" {
		d += " parent=" + shortDigest(parent)
	}
	return d
}

func qaDetail(status string, score float64, issues string, repaired int) string {
	d := status + " score=" + strconv.FormatFloat(score, 'f', -1, 64)
	if issues != "" {
		d += " issues=" + issues
	}
	if repaired > 0 {
		d += " repaired=v" + strconv.Itoa(repaired)
	}
	return d
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// newestFirst orders merged history and applies the limit
func newestFirst(entries []Entry, limit int) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.After(entries[j].At)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
