package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/scout/internal/storage"
	_ "modernc.org/sqlite"
)

var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS searches (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	identity TEXT NOT NULL,
	targets TEXT NOT NULL,
	found BOOLEAN NOT NULL,
	target TEXT,
	provider TEXT,
	attempts INTEGER NOT NULL,
	warnings INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS searches_created_at ON searches (created_at);
`

// New opens (or creates) the SQLite database at dsn.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// database/sql would otherwise open several connections, and each
	// in-memory connection is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *storage.SearchRecord) error {
	targetsJSON, err := json.Marshal(rec.Targets)
	if err != nil {
		return fmt.Errorf("sqlite: encode targets: %w", err)
	}

	query := `
	INSERT INTO searches (
		id, query, identity, targets, found, target, provider, attempts, warnings, duration_ms, created_at, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		rec.ID,
		rec.Query,
		rec.Identity,
		string(targetsJSON),
		rec.Found,
		rec.Target,
		rec.Provider,
		rec.Attempts,
		rec.Warnings,
		rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC(),
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.SearchRecord, error) {
	query := `SELECT id, query, identity, targets, found, target, provider, attempts, warnings, duration_ms, created_at, error FROM searches WHERE 1=1`
	args := []any{}

	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.Found != nil {
		query += ` AND found = ?`
		args = append(args, *filter.Found)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC`

	// SQLite only accepts OFFSET after LIMIT; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var results []*storage.SearchRecord
	for rows.Next() {
		var (
			r           storage.SearchRecord
			targetsJSON string
			durationMs  int64
			target      sql.NullString
			provider    sql.NullString
			errText     sql.NullString
		)

		err := rows.Scan(
			&r.ID, &r.Query, &r.Identity, &targetsJSON, &r.Found, &target, &provider,
			&r.Attempts, &r.Warnings, &durationMs, &r.CreatedAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}

		r.Target, r.Provider, r.Error = target.String, provider.String, errText.String
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(targetsJSON), &r.Targets); err != nil {
			return nil, fmt.Errorf("sqlite: decode targets: %w", err)
		}

		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
