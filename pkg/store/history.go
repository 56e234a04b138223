// Package store keeps a log of imported rows in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/autofill/internal/models"
)

type HistoryConfig struct {
	ConnString string
	TableName  string
	// DefaultLimit bounds Recent when the caller passes no limit.
	DefaultLimit int
}

type History struct {
	config HistoryConfig
	pool   *pgxpool.Pool
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func NewWithConfig(ctx context.Context, config HistoryConfig) (*History, error) {
	if config.TableName == "" {
		config.TableName = "imports"
	}
	if config.DefaultLimit == 0 {
		config.DefaultLimit = 20
	}
	if !identifier.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	h := &History{
		config: config,
		pool:   pool,
	}

	if err := h.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return h, nil
}

func (h *History) initialize(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			source_url TEXT NOT NULL,
			database_id TEXT NOT NULL,
			page_id TEXT NOT NULL,
			page_url TEXT,
			model TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, h.config.TableName)

	if _, err := h.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at DESC)`,
		h.config.TableName, h.config.TableName)

	if _, err := h.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Record appends one import.
func (h *History) Record(ctx context.Context, rec models.ImportRecord) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (source_url, database_id, page_id, page_url, model)
		VALUES ($1, $2, $3, $4, $5)`,
		h.config.TableName)

	_, err := h.pool.Exec(ctx, stmt,
		sanitizeUTF8(rec.SourceURL),
		rec.DatabaseID,
		rec.PageID,
		sanitizeUTF8(rec.PageURL),
		rec.Model,
	)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}

// Recent returns the latest imports, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]models.ImportRecord, error) {
	if limit <= 0 {
		limit = h.config.DefaultLimit
	}

	query := fmt.Sprintf(`
		SELECT id, source_url, database_id, page_id, COALESCE(page_url, ''), COALESCE(model, ''), created_at
		FROM %s
		ORDER BY created_at DESC, id DESC
		LIMIT $1`,
		h.config.TableName)

	rows, err := h.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	var recs []models.ImportRecord
	for rows.Next() {
		var rec models.ImportRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SourceURL,
			&rec.DatabaseID,
			&rec.PageID,
			&rec.PageURL,
			&rec.Model,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read imports: %w", err)
	}

	return recs, nil
}

func (h *History) Close() {
	if h.pool != nil {
		h.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
