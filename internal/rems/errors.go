// Copyright (c) 2026 Hilla. All rights reserved.

package rems

import (
	"errors"
	"fmt"
)

// # API Errors

// APIErrorKind classifies how a REMS API call failed.
type APIErrorKind string

const (
	// KindTransport covers connection failures and timeouts before a
	// response was received.
	KindTransport APIErrorKind = "transport"

	// KindHTTP covers responses with a non-200 status code.
	KindHTTP APIErrorKind = "http"

	// KindRejected covers HTTP 200 responses whose JSON body carried
	// `"success": false` (or no success field at all on a POST). REMS
	// signals application-level failure this way.
	KindRejected APIErrorKind = "rejected"
)

// APIError describes a failed call to the REMS API.
//
// # Propagation
//
// The client never swallows these; every failed call returns one. Components
// above decide whether to translate (registration), wrap (entitlement
// checks) or log-and-continue (logout close calls).
type APIError struct {
	// Kind classifies the failure mode.
	Kind APIErrorKind

	// URL is the full request URL that failed.
	URL string

	// HTTPStatus is the response status code. Zero for transport failures.
	HTTPStatus int

	// Body holds the (truncated) response body for diagnostics.
	Body string

	// Cause is the underlying transport error, if any.
	Cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("rems: request to %s failed: %v", e.URL, e.Cause)
	case KindHTTP:
		return fmt.Sprintf("rems: %s returned HTTP %d", e.URL, e.HTTPStatus)
	default:
		return fmt.Sprintf("rems: %s rejected the request", e.URL)
	}
}

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *APIError) Unwrap() error { return e.Cause }

// # Registration Errors

var (
	// ErrAlreadyEntitled is returned when registration is attempted for a
	// patron who already holds an approved entitlement. Calling code should
	// have checked the decision engine first.
	ErrAlreadyEntitled = errors.New("rems: patron already holds an active entitlement")

	// ErrCreateFailed is returned when applications/create answered without
	// an application id, leaving the workflow nothing to continue with.
	ErrCreateFailed = errors.New("rems: application create returned no application id")

	// ErrMissingIdentityToken is returned when registration is attempted
	// without an identity token. The workflow must not open a draft that
	// can never carry a valid identity field.
	ErrMissingIdentityToken = errors.New("rems: registration requires an identity token")
)

// RegistrationError reports a failed step of the registration workflow.
//
// The workflow aborts on the first failing step; a draft application created
// before the failure is left as an orphan on the REMS side (REMS owns
// abandoned drafts, there is no cleanup API).
type RegistrationError struct {
	// Step is the relative API path of the step that failed,
	// e.g. "applications/create".
	Step string

	// Cause is the underlying [*APIError] or sentinel error.
	Cause error
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("rems: registration step %s failed: %v", e.Step, e.Cause)
}

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *RegistrationError) Unwrap() error { return e.Cause }

// # Entitlement Check Errors

// CheckError reports that an access or blacklist check could not be
// completed because REMS was unreachable or answered abnormally.
//
// # Caller Contract
//
// A CheckError means "cannot confirm access", never "access denied" and
// never "access granted". Callers must treat it as a denial with a
// service-unavailable indication (fail closed).
type CheckError struct {
	Cause error
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	return fmt.Sprintf("rems: entitlement check failed: %v", e.Cause)
}

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *CheckError) Unwrap() error { return e.Cause }
