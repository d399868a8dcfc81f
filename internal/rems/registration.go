// Copyright (c) 2026 Hilla. All rights reserved.

package rems

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
)

// Registrant holds the data a patron submits when applying for restricted
// record access.
type Registrant struct {
	// ExternalID is the authenticated patron's external identifier.
	ExternalID string

	Email     string
	FirstName string
	LastName  string

	// UsagePurpose is the patron's free-text reason for requesting access.
	// It is stored verbatim and shown back to them later.
	UsagePurpose string

	// AgeConfirmed and LicenseAccepted are the two acknowledgement
	// checkboxes of the registration form.
	AgeConfirmed    bool
	LicenseAccepted bool

	// IdentityToken is the patron's national identification (or an
	// equivalent token). Never logged.
	IdentityToken string
}

// Register drives the four-step REMS registration workflow.
//
// # Steps (strictly sequential — each depends on the previous one)
//
//  1. users/create        — idempotent upsert of the REMS user (admin context).
//  2. applications/create — opens a draft for the catalogue item; must
//     return an application id.
//  3. applications/save-draft — writes the form field values.
//  4. applications/submit — moves the draft to Submitted.
//
// # Failure Semantics
//
// The workflow aborts on the first failing step and returns a
// [*RegistrationError] naming it. No compensating cleanup is attempted; a
// draft created before the failure stays orphaned on the REMS side (REMS
// owns abandoned drafts and offers no delete API).
//
// # Preconditions
//
// The patron must not already hold an approved entitlement; attempting to
// re-register one is a caller error surfaced as [ErrAlreadyEntitled]. The
// identity token must be present, surfaced as [ErrMissingIdentityToken]
// before any REMS call is made.
func (service *Service) Register(ctx context.Context, registrant Registrant) error {
	userID, err := service.remsUserID(registrant.ExternalID)
	if err != nil {
		return err
	}

	if strings.TrimSpace(registrant.IdentityToken) == "" {
		return ErrMissingIdentityToken
	}

	// ── 0. Entitlement Precondition ───────────────────────────────────────

	// Always consult REMS directly here; a stale cached denial must not
	// let a freshly approved patron double-register.
	status, err := service.resolveStatus(ctx, userID)
	if err != nil {
		return &RegistrationError{Step: "entitlements", Cause: err}
	}
	if status.Grants() {
		return ErrAlreadyEntitled
	}

	// ── 1. REMS User Upsert ───────────────────────────────────────────────

	userBody := map[string]any{
		"userid": userID,
		"email":  registrant.Email,
		"name":   registrant.FirstName + " " + registrant.LastName,
	}
	if _, err := service.api.Post(ctx, "users/create", userBody, service.cfg.AdminUserID); err != nil {
		return &RegistrationError{Step: "users/create", Cause: err}
	}

	// ── 2. Draft Creation ─────────────────────────────────────────────────

	createBody := map[string]any{
		"catalogue-item-ids": []int{service.cfg.CatalogueItemID},
	}
	raw, err := service.api.Post(ctx, "applications/create", createBody, userID)
	if err != nil {
		return &RegistrationError{Step: "applications/create", Cause: err}
	}

	applicationID := parseApplicationID(raw)
	if applicationID == 0 {
		return &RegistrationError{Step: "applications/create", Cause: ErrCreateFailed}
	}

	// ── 3. Field Values ───────────────────────────────────────────────────

	draftBody := map[string]any{
		"application-id": applicationID,
		"field-values":   service.fieldValues(registrant),
	}
	if _, err := service.api.Post(ctx, "applications/save-draft", draftBody, userID); err != nil {
		return &RegistrationError{Step: "applications/save-draft", Cause: err}
	}

	// ── 4. Submission ─────────────────────────────────────────────────────

	submitBody := map[string]any{
		"application-id": applicationID,
	}
	if _, err := service.api.Post(ctx, "applications/submit", submitBody, userID); err != nil {
		return &RegistrationError{Step: "applications/submit", Cause: err}
	}

	// ── 5. Session Cache Refresh ──────────────────────────────────────────

	service.storePermission(ctx, userID, &SessionPermission{
		AccessStatus: StatusSubmitted,
		UsagePurpose: registrant.UsagePurpose,
		IsRegistered: true,
	})

	service.logger.Info("rems_registration_submitted",
		slog.String("user_id", userID),
		slog.Int("application_id", applicationID),
	)

	return nil
}

// fieldValues builds the save-draft field list from the configured
// deployment-specific field ids. REMS transports every value as a string.
func (service *Service) fieldValues(registrant Registrant) []map[string]any {
	return []map[string]any{
		{"field": service.cfg.FieldFirstName, "value": registrant.FirstName},
		{"field": service.cfg.FieldLastName, "value": registrant.LastName},
		{"field": service.cfg.FieldEmail, "value": registrant.Email},
		{"field": service.cfg.FieldUsagePurpose, "value": registrant.UsagePurpose},
		{"field": service.cfg.FieldAgeConfirmed, "value": boolField(registrant.AgeConfirmed)},
		{"field": service.cfg.FieldLicense, "value": boolField(registrant.LicenseAccepted)},
		{"field": service.cfg.FieldIdentity, "value": registrant.IdentityToken},
	}
}

// parseApplicationID extracts "application-id" from a create response,
// returning zero when it is absent.
func parseApplicationID(raw []byte) int {
	var response struct {
		ApplicationID int `json:"application-id"`
	}
	if err := json.Unmarshal(raw, &response); err != nil {
		return 0
	}
	return response.ApplicationID
}

// boolField renders an acknowledgement checkbox the way REMS expects.
func boolField(checked bool) string {
	return strconv.FormatBool(checked)
}
