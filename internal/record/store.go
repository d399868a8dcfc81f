// Copyright (c) 2026 Hilla. All rights reserved.

package record

import (
	"context"

	"github.com/hillalabs/hilla/pkg/pagination"
)

// Repository defines the data access contract for catalogue records.
//
// # Implementations
//
// The canonical implementation for Hilla is PostgreSQL.
type Repository interface {
	// FindBySlug returns the record with the given slug.
	//
	// Returns [apperr.NotFound] if the record does not exist.
	FindBySlug(ctx context.Context, slug string) (*Record, error)

	// FindByID returns the record with the given ID.
	//
	// Returns [apperr.NotFound] if the record does not exist.
	FindByID(ctx context.Context, id string) (*Record, error)

	// List returns one page of records ordered by title, with the total
	// count for pagination metadata.
	List(ctx context.Context, params pagination.Params) ([]*Record, int, error)

	// Create persists a brand-new catalogue record.
	Create(ctx context.Context, record *Record) error

	// Update persists changes to a record's metadata.
	Update(ctx context.Context, record *Record) error
}
