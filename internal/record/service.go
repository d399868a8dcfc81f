// Copyright (c) 2026 Hilla. All rights reserved.

package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/hillalabs/hilla/internal/platform/apperr"
	"github.com/hillalabs/hilla/internal/rems"
	"github.com/hillalabs/hilla/pkg/pagination"
	"github.com/hillalabs/hilla/pkg/slug"
	"github.com/hillalabs/hilla/pkg/uuidv7"
)

// AccessEngine resolves whether a patron may view restricted payloads.
//
// Implemented by the entitlement decision engine. A [*rems.CheckError]
// means the engine could not decide; callers must deny access then.
type AccessEngine interface {
	HasAccess(ctx context.Context, externalID string, ignoreCache bool) (bool, error)
}

// Service implements catalogue use cases, including restricted access
// resolution.
type Service struct {
	repository Repository
	engine     AccessEngine
}

// NewService constructs a catalogue [Service].
//
// engine may be nil when the deployment has no entitlement backend; every
// restricted payload is then withheld.
func NewService(repository Repository, engine AccessEngine) *Service {
	return &Service{
		repository: repository,
		engine:     engine,
	}
}

// ListRecords returns one page of catalogue records.
//
// Listings expose public metadata only, so no access resolution happens
// here regardless of the viewer.
func (service *Service) ListRecords(ctx context.Context, params pagination.Params) ([]*Record, int, error) {
	return service.repository.List(ctx, params)
}

// GetRecord resolves the detail view of one record for the given viewer.
//
// # Parameters
//   - ctx: Context for database and entitlement round-trips.
//   - recordSlug: The record's URL slug.
//   - externalID: The viewer's external identity, or "" when anonymous.
//
// # Access Resolution
//
//   - Non-restricted records carry their full payload for everyone.
//   - Anonymous viewers get the redacted view of restricted records.
//   - Authenticated viewers are resolved through the decision engine.
//   - An engine failure returns [apperr.ServiceUnavailable]: the payload is
//     withheld AND the client learns the denial is temporary. Access is
//     never granted on a failed check.
func (service *Service) GetRecord(ctx context.Context, recordSlug, externalID string) (*View, error) {
	record, err := service.repository.FindBySlug(ctx, recordSlug)
	if err != nil {
		return nil, err
	}

	// ── 1. Public Tier ────────────────────────────────────────────────────

	if !record.Restricted {
		return NewView(record, true, ReasonPublic), nil
	}

	// ── 2. Restricted Tier ────────────────────────────────────────────────

	if externalID == "" {
		return NewView(record, false, ReasonUnauthenticated), nil
	}

	if service.engine == nil {
		return NewView(record, false, ReasonNotEntitled), nil
	}

	granted, err := service.engine.HasAccess(ctx, externalID, false)
	if err != nil {
		// Fail closed. The engine could not decide, so nobody gets the
		// restricted payload, and the client sees a retryable condition.
		var checkErr *rems.CheckError
		if errors.As(err, &checkErr) {
			return nil, apperr.ServiceUnavailable("Access permission service is temporarily unavailable")
		}
		if errors.Is(err, rems.ErrNoCurrentUser) {
			return NewView(record, false, ReasonUnauthenticated), nil
		}
		return nil, fmt.Errorf("record_service_access_check_failed: %w", err)
	}

	if !granted {
		return NewView(record, false, ReasonNotEntitled), nil
	}

	return NewView(record, true, ReasonPublic), nil
}

// CreateInput holds the data required to add a catalogue record.
type CreateInput struct {
	Title              string
	Author             string
	Format             string
	Year               int
	Description        string
	Restricted         bool
	RestrictedNotes    string
	RestrictedLocation string
	SourceURL          string
}

// CreateRecord adds a new catalogue record with a slug derived from its title.
//
// # Returns
//   - A pointer to the newly created [*Record].
//   - Returns a wrapped conflict if the derived slug is already taken.
func (service *Service) CreateRecord(ctx context.Context, input CreateInput) (*Record, error) {
	record := &Record{
		ID:                 uuidv7.New(),
		Slug:               slug.From(input.Title),
		Title:              input.Title,
		Author:             input.Author,
		Format:             input.Format,
		Year:               input.Year,
		Description:        input.Description,
		Restricted:         input.Restricted,
		RestrictedNotes:    input.RestrictedNotes,
		RestrictedLocation: input.RestrictedLocation,
		SourceURL:          input.SourceURL,
	}

	if err := service.repository.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record_service_create_failed: %w", err)
	}

	return record, nil
}
