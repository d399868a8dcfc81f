// Copyright (c) 2026 Hilla. All rights reserved.

package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hillalabs/hilla/internal/platform/apperr"
	"github.com/hillalabs/hilla/pkg/pagination"
)

// PostgresRepository implements the Repository interface using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const recordColumns = `
	id, slug, title, author, format, year, description,
	restricted, restrictednotes, restrictedlocation, sourceurl,
	createdat, updatedat`

// scanRecord reads one row into a Record entity.
func scanRecord(row pgx.Row) (*Record, error) {
	record := &Record{}
	err := row.Scan(
		&record.ID,
		&record.Slug,
		&record.Title,
		&record.Author,
		&record.Format,
		&record.Year,
		&record.Description,
		&record.Restricted,
		&record.RestrictedNotes,
		&record.RestrictedLocation,
		&record.SourceURL,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// FindBySlug retrieves a record by its unique slug.
//
// # Returns
//
// Returns [*Record] if found, or [apperr.NotFound] if no record exists.
func (repository *PostgresRepository) FindBySlug(ctx context.Context, slug string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM catalogue.record WHERE slug = $1`

	record, err := scanRecord(repository.pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Record")
		}
		return nil, fmt.Errorf("postgres_record_repo_find_by_slug_failed: %w", err)
	}

	return record, nil
}

// FindByID retrieves a record by its unique ID.
func (repository *PostgresRepository) FindByID(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM catalogue.record WHERE id = $1`

	record, err := scanRecord(repository.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Record")
		}
		return nil, fmt.Errorf("postgres_record_repo_find_by_id_failed: %w", err)
	}

	return record, nil
}

// List returns one page of records ordered by title, plus the total count.
func (repository *PostgresRepository) List(ctx context.Context, params pagination.Params) ([]*Record, int, error) {
	// ── 1. Total Count ────────────────────────────────────────────────────

	var total int
	if err := repository.pool.QueryRow(ctx, `SELECT COUNT(*) FROM catalogue.record`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_record_repo_count_failed: %w", err)
	}

	// ── 2. Page Query ─────────────────────────────────────────────────────

	query := `SELECT ` + recordColumns + `
		FROM catalogue.record
		ORDER BY title ASC
		LIMIT $1 OFFSET $2`

	rows, err := repository.pool.Query(ctx, query, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_record_repo_list_failed: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres_record_repo_scan_failed: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres_record_repo_rows_failed: %w", err)
	}

	return records, total, nil
}

// Create persists a new record into the catalogue.record table.
func (repository *PostgresRepository) Create(ctx context.Context, record *Record) error {
	const query = `
		INSERT INTO catalogue.record (
			id, slug, title, author, format, year, description,
			restricted, restrictednotes, restrictedlocation, sourceurl,
			createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := repository.pool.Exec(ctx, query,
		record.ID,
		record.Slug,
		record.Title,
		record.Author,
		record.Format,
		record.Year,
		record.Description,
		record.Restricted,
		record.RestrictedNotes,
		record.RestrictedLocation,
		record.SourceURL,
		record.CreatedAt,
		record.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_record_repo_create_failed: %w", err)
	}

	return nil
}

// Update persists changes to a record's metadata.
func (repository *PostgresRepository) Update(ctx context.Context, record *Record) error {
	const query = `
		UPDATE catalogue.record
		SET title = $2, author = $3, format = $4, year = $5, description = $6,
		    restricted = $7, restrictednotes = $8, restrictedlocation = $9,
		    sourceurl = $10, updatedat = $11
		WHERE id = $1`

	record.UpdatedAt = time.Now()
	_, err := repository.pool.Exec(ctx, query,
		record.ID,
		record.Title,
		record.Author,
		record.Format,
		record.Year,
		record.Description,
		record.Restricted,
		record.RestrictedNotes,
		record.RestrictedLocation,
		record.SourceURL,
		record.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_record_repo_update_failed: %w", err)
	}

	return nil
}
