// Copyright (c) 2026 Hilla. All rights reserved.

/*
Package rems integrates Hilla with an external REMS (Resource Entitlement
Management System) instance that governs access to the restricted record set.

It answers two questions for the rest of the platform: "may this patron see
restricted metadata right now?" and "should we offer them the registration
form?". REMS itself is the single source of truth; this package only fetches,
maps, and caches its answers per patron session.

Architecture:

  - Client: stateless JSON/HTTP wrapper around the REMS API.
  - MapStatus: pure mapping from REMS state strings to [ApplicationStatus].
  - PermissionCache: per-session cached access decision (Redis).
  - Service: the access decision engine and registration workflow.

All REMS failures are surfaced as typed errors (see errors.go); callers are
expected to deny access when a check fails, never to fail open.
*/
package rems

// # Application Lifecycle

// ApplicationStatus is the closed set of states a REMS access application
// can be in, as seen from Hilla's side.
//
// # Invariant
//
// Exactly one status grants access: [StatusApproved]. Every other value,
// including [StatusUnknown], denies.
type ApplicationStatus string

const (
	// Application created but not yet submitted by the patron.
	StatusDraft ApplicationStatus = "draft"

	// Application submitted, waiting for an approver's decision.
	StatusSubmitted ApplicationStatus = "submitted"

	// Access granted. The only status that allows restricted metadata.
	StatusApproved ApplicationStatus = "approved"

	// Application denied by an approver.
	StatusRejected ApplicationStatus = "rejected"

	// A previously granted application was withdrawn by an approver.
	StatusRevoked ApplicationStatus = "revoked"

	// Application closed, either administratively or on patron logout.
	StatusClosed ApplicationStatus = "closed"

	// The grant's validity period has passed.
	StatusExpired ApplicationStatus = "expired"

	// The patron has never submitted an application. This is a normal
	// terminal state for most patrons, not an error.
	StatusNotSubmitted ApplicationStatus = "not_submitted"

	// REMS reported a state string this version does not recognize.
	StatusUnknown ApplicationStatus = "unknown"
)

// Grants reports whether the status allows viewing restricted metadata.
func (s ApplicationStatus) Grants() bool {
	return s == StatusApproved
}

// # State Mapping

// stateTable maps the raw `application/state` strings used by the REMS API
// to internal statuses. Keys follow the REMS keyword namespace verbatim.
var stateTable = map[string]ApplicationStatus{
	"application.state/draft":     StatusDraft,
	"application.state/submitted": StatusSubmitted,
	"application.state/approved":  StatusApproved,
	"application.state/rejected":  StatusRejected,
	"application.state/revoked":   StatusRevoked,
	"application.state/closed":    StatusClosed,
	"application.state/expired":   StatusExpired,
}

// MapStatus converts a raw REMS application-state string into an
// [ApplicationStatus].
//
// # Behavior
//
// Pure and total: any string outside the mapping table yields
// [StatusUnknown]. It never fails, so a REMS vocabulary change can only
// ever downgrade a patron to "unknown" (which denies access) rather than
// break the request path.
func MapStatus(state string) ApplicationStatus {
	if status, found := stateTable[state]; found {
		return status
	}
	return StatusUnknown
}
