// Copyright (c) 2026 Hilla. All rights reserved.

// Package record implements the bibliographic catalogue of the Hilla platform.
//
// # Architecture
//
// The catalogue has a public tier and a restricted tier. Public metadata is
// visible to everyone; restricted payload fields require an approved access
// entitlement resolved by the decision engine. The engine is consulted on
// every restricted detail view and its failures always read as "no access".
package record

import (
	"time"
)

// Record represents one bibliographic record of the catalogue.
//
// # Rules
//   - Slug is unique and URL-safe, derived from the title at creation.
//   - Restricted marks the record as part of the protected collection.
//   - The Restricted* payload fields are only serialized through
//     [Record.View] with the proper access level.
type Record struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Format      string `json:"format"`
	Year        int    `json:"year"`
	Description string `json:"description"`

	Restricted bool `json:"restricted"`

	// Restricted payload. Never serialized directly; see [Record.View].
	RestrictedNotes    string `json:"-"`
	RestrictedLocation string `json:"-"`
	SourceURL          string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccessDescriptor tells clients why the restricted payload is absent, so
// the UI can offer the registration flow instead of a dead end.
type AccessDescriptor struct {
	// Granted reports whether the restricted payload is included.
	Granted bool `json:"granted"`

	// Reason is one of "public", "unauthenticated", "not_entitled".
	Reason string `json:"reason"`
}

// Access descriptor reasons.
const (
	ReasonPublic          = "public"
	ReasonUnauthenticated = "unauthenticated"
	ReasonNotEntitled     = "not_entitled"
)

// View is the client-facing detail representation of a record.
type View struct {
	Record

	// Payload holds the restricted fields, present only when access was
	// granted for this request.
	Payload *RestrictedPayload `json:"restricted_payload,omitempty"`

	Access AccessDescriptor `json:"access"`
}

// RestrictedPayload groups the protected fields of a restricted record.
type RestrictedPayload struct {
	Notes     string `json:"notes,omitempty"`
	Location  string `json:"location,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// NewView builds the detail representation for a resolved access level.
//
// A non-restricted record always carries its payload; a restricted one only
// when granted is true.
func NewView(record *Record, granted bool, reason string) *View {
	view := &View{
		Record: *record,
		Access: AccessDescriptor{Granted: granted, Reason: reason},
	}

	if !record.Restricted || granted {
		view.Payload = &RestrictedPayload{
			Notes:     record.RestrictedNotes,
			Location:  record.RestrictedLocation,
			SourceURL: record.SourceURL,
		}
	}

	return view
}
