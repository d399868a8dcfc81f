// Copyright (c) 2026 Hilla. All rights reserved.

package rems

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hillalabs/hilla/internal/platform/apperr"
	"github.com/hillalabs/hilla/internal/platform/respond"
	requestutil "github.com/hillalabs/hilla/internal/platform/request"
	"github.com/hillalabs/hilla/internal/platform/validate"
)

// Handler implements entitlement-related HTTP endpoints.
//
// # Scope
//
// This handler exposes the patron-facing side of the access permission
// subsystem: querying the current access status and submitting a new
// access application.
type Handler struct {
	remsService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{remsService: service}
}

// Routes returns a [chi.Router] configured with entitlement routes.
//
// All routes require an authenticated patron; the router is mounted
// behind the auth middleware.
//
// # Endpoints
//   - GET  /         : Returns the current access permission status.
//   - POST /register : Submits a new access application.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.status)
	router.Post("/register", handler.register)

	return router
}

// statusResponse is the JSON shape returned by GET /api/v1/access.
type statusResponse struct {
	Status           string     `json:"status"`
	HasAccess        bool       `json:"has_access"`
	IsRegistered     bool       `json:"is_registered"`
	UsagePurpose     string     `json:"usage_purpose,omitempty"`
	BlacklistedSince *time.Time `json:"blacklisted_since,omitempty"`
}

// status handles GET /api/v1/access requests.
//
// # Returns
//   - Writes HTTP 200 OK with the permission snapshot.
//   - Writes HTTP 503 Service Unavailable when the entitlement backend
//     cannot be reached. Access is denied in that case, never assumed.
func (handler *Handler) status(writer http.ResponseWriter, request *http.Request) {
	externalID, err := requestutil.RequiredExternalID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// Query parameter ?refresh=true bypasses the session cache.
	refresh := request.URL.Query().Get("refresh") == "true"

	applicationStatus, err := handler.remsService.ResolveStatusFresh(request.Context(), externalID, refresh)
	if err != nil {
		respond.Error(writer, request, mapCheckError(err))
		return
	}

	permission := handler.remsService.Permission(request.Context(), externalID)

	response := statusResponse{
		Status:    string(applicationStatus),
		HasAccess: applicationStatus.Grants(),
	}

	if permission != nil {
		response.IsRegistered = permission.IsRegistered
		response.UsagePurpose = permission.UsagePurpose
		response.BlacklistedSince = permission.BlacklistedSince
	}

	respond.OK(writer, response)
}

// registerRequest represents the JSON payload for an access application.
type registerRequest struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	UsagePurpose    string `json:"usage_purpose"`
	AgeConfirmed    bool   `json:"age_confirmed"`
	LicenseAccepted bool   `json:"license_accepted"`
	IdentityToken   string `json:"identity_token"`
}

// register handles POST /api/v1/access/register requests.
//
// # Returns
//   - Writes HTTP 204 No Content when the application was submitted.
//   - Writes HTTP 400 Bad Request if validation rules fail.
//   - Writes HTTP 409 Conflict if the patron is already entitled.
//   - Writes HTTP 503 Service Unavailable when a workflow step fails
//     against the entitlement backend.
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	externalID, err := requestutil.RequiredExternalID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Boundary Validation (Explicit & Mandatory) ────────────────────

	validator := &validate.Validator{}
	validator.
		Required("email", input.Email).
		Email("email", input.Email).
		Required("first_name", input.FirstName).
		Required("last_name", input.LastName).
		Required("usage_purpose", input.UsagePurpose).
		MaxLen("usage_purpose", input.UsagePurpose, 2000).
		True("age_confirmed", input.AgeConfirmed, "must be confirmed").
		True("license_accepted", input.LicenseAccepted, "must be accepted").
		Required("identity_token", input.IdentityToken)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	err = handler.remsService.Register(request.Context(), Registrant{
		ExternalID:      externalID,
		Email:           input.Email,
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		UsagePurpose:    input.UsagePurpose,
		AgeConfirmed:    input.AgeConfirmed,
		LicenseAccepted: input.LicenseAccepted,
		IdentityToken:   input.IdentityToken,
	})

	if err != nil {
		respond.Error(writer, request, mapRegistrationError(err))
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	respond.NoContent(writer)
}

// mapCheckError converts entitlement check failures into client-facing
// application errors. Backend outages always read as unavailable, never
// as granted access.
func mapCheckError(err error) error {
	var checkErr *CheckError
	if errors.As(err, &checkErr) {
		return apperr.ServiceUnavailable("Access permission service is temporarily unavailable")
	}

	if errors.Is(err, ErrNoCurrentUser) {
		return apperr.Unauthorized("No linked patron identity")
	}

	return err
}

// mapRegistrationError converts workflow failures into client-facing
// application errors.
func mapRegistrationError(err error) error {
	if errors.Is(err, ErrAlreadyEntitled) {
		return apperr.Conflict("Access has already been granted")
	}

	if errors.Is(err, ErrMissingIdentityToken) {
		return apperr.ValidationError("Validation failed",
			apperr.FieldError{Field: "identity_token", Message: "is required"})
	}

	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		return apperr.ServiceUnavailable("Access application could not be submitted")
	}

	return mapCheckError(err)
}
