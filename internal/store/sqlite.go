package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codeur-agent/codeur-responder/internal/lead"
)

// SQLiteConfig locates the database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "codeur.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	reference   TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	budget      TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'new',
	score       REAL,
	reasons     TEXT NOT NULL DEFAULT '[]',
	note        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	upserted_at DATETIME NOT NULL
);
`

const sqliteIndexes = `
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_upserted_at ON leads(upserted_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	if err := s.addUpsertedAt(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteIndexes); err != nil {
		return fmt.Errorf("sqlite: migrate indexes: %w", err)
	}
	return nil
}

// addUpsertedAt upgrades tables created before upserted_at existed.
func (s *SQLiteStore) addUpsertedAt(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('leads') WHERE name = 'upserted_at'`,
	).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE leads ADD COLUMN upserted_at DATETIME`); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE leads SET upserted_at = updated_at`)
	return err
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) Upsert(ctx context.Context, l *lead.Lead) error {
	if l == nil || l.Reference == "" {
		return errors.New("sqlite: lead reference is required")
	}

	tags, err := marshalList(l.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: marshal tags: %w", err)
	}
	budget, err := marshalList(l.Budget)
	if err != nil {
		return fmt.Errorf("sqlite: marshal budget: %w", err)
	}
	reasons, err := marshalList(l.Reasons)
	if err != nil {
		return fmt.Errorf("sqlite: marshal reasons: %w", err)
	}

	now := s.now().UTC()
	created := l.CreatedAt.UTC()
	if l.CreatedAt.IsZero() {
		created = now
	}

	var score sql.NullFloat64
	if l.Score != nil {
		score = sql.NullFloat64{Float64: *l.Score, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO leads (reference, title, description, tags, budget, status, score, reasons, note, created_at, updated_at, upserted_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(reference) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	tags = excluded.tags,
	budget = excluded.budget,
	status = excluded.status,
	score = COALESCE(excluded.score, leads.score),
	reasons = CASE WHEN excluded.reasons = '[]' THEN leads.reasons ELSE excluded.reasons END,
	note = CASE WHEN excluded.note = '' THEN leads.note ELSE excluded.note END,
	updated_at = excluded.updated_at,
	upserted_at = excluded.upserted_at`,
		l.Reference, l.Title, l.Description, tags, budget, string(l.Status), score, reasons, l.Note, created, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert lead %s: %w", l.Reference, err)
	}

	l.UpdatedAt = now
	l.UpsertedAt = now
	return nil
}

const leadColumns = `reference, title, description, tags, budget, status, score, reasons, note, created_at, updated_at, upserted_at`

func (s *SQLiteStore) Get(ctx context.Context, reference string) (*lead.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE reference = ?`, reference)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get lead %s: %w", reference, err)
	}
	return l, nil
}

func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*lead.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY upserted_at DESC, reference`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list leads: %w", err)
	}
	defer rows.Close()

	leads := []*lead.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list leads iterate: %w", err)
	}
	return leads, nil
}

func (s *SQLiteStore) Count(ctx context.Context, status lead.Status) (int64, error) {
	query := `SELECT COUNT(*) FROM leads`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count leads: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, reference string, status lead.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE reference = ?`,
		string(status), s.now().UTC(), reference,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update lead status %s: %w", reference, err)
	}
	return checkRowsAffected(res, reference)
}

func (s *SQLiteStore) Annotate(ctx context.Context, reference, note string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET note = ?, updated_at = ? WHERE reference = ?`,
		note, s.now().UTC(), reference,
	)
	if err != nil {
		return fmt.Errorf("sqlite: annotate lead %s: %w", reference, err)
	}
	return checkRowsAffected(res, reference)
}

func (s *SQLiteStore) Delete(ctx context.Context, reference string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE reference = ?`, reference)
	if err != nil {
		return fmt.Errorf("sqlite: delete lead %s: %w", reference, err)
	}
	return checkRowsAffected(res, reference)
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete all leads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}

func checkRowsAffected(res sql.Result, reference string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, reference)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*lead.Lead, error) {
	var (
		l                     lead.Lead
		status                string
		tags, budget, reasons string
		score                 sql.NullFloat64
	)

	err := row.Scan(&l.Reference, &l.Title, &l.Description, &tags, &budget, &status, &score, &reasons, &l.Note,
		&l.CreatedAt, &l.UpdatedAt, &l.UpsertedAt)
	if err != nil {
		return nil, err
	}

	l.Status = lead.Status(status)
	if score.Valid {
		v := score.Float64
		l.Score = &v
	}
	if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(budget), &l.Budget); err != nil {
		return nil, fmt.Errorf("unmarshal budget: %w", err)
	}
	if err := json.Unmarshal([]byte(reasons), &l.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal reasons: %w", err)
	}
	return &l, nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
