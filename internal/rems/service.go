// Copyright (c) 2026 Hilla. All rights reserved.

package rems

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hillalabs/hilla/internal/platform/config"
)

// closeComment is the audit note attached to applications closed on logout.
const closeComment = "RMS_auto_close_logout"

// ErrNoCurrentUser is returned when an operation requiring the patron's
// REMS identity is invoked without an authenticated patron.
var ErrNoCurrentUser = errors.New("rems: no authenticated patron for this operation")

// Service is the access decision engine for the restricted record set.
//
// # Authority
//
// REMS is the single source of truth. The engine performs no local state
// transitions beyond mapping REMS state strings; every refresh re-fetches
// from the API and replaces the session cache wholesale.
type Service struct {
	api    API
	cache  PermissionCache
	cfg    config.REMSConfig
	logger *slog.Logger
}

// NewService constructs the decision engine with its dependencies.
func NewService(api API, cache PermissionCache, cfg config.REMSConfig, logger *slog.Logger) *Service {
	return &Service{
		api:    api,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
	}
}

// # Wire Shapes

// remsEntitlement is one entry of GET /entitlements.
type remsEntitlement struct {
	ApplicationID int `json:"application-id"`
}

// remsApplicationForm is the form portion of an application entry.
type remsApplicationForm struct {
	Fields []struct {
		ID    string `json:"field/id"`
		Value string `json:"field/value"`
	} `json:"form/fields"`
}

// remsApplication is one entry of GET /my-applications, reduced to the
// fields the engine reads. REMS attaches the form as a single
// "application/form" object; some releases use an "application/forms"
// array instead, so both keys are decoded.
type remsApplication struct {
	ID        int    `json:"application/id"`
	State     string `json:"application/state"`
	Resources []struct {
		CatalogueItemID int `json:"catalogue-item/id"`
	} `json:"application/resources"`
	Form  remsApplicationForm   `json:"application/form"`
	Forms []remsApplicationForm `json:"application/forms"`
}

// remsBlacklistEntry is one entry of GET /blacklist.
type remsBlacklistEntry struct {
	AddedAt time.Time `json:"blacklist/added-at"`
}

// # Identity Derivation

// remsUserID derives the REMS-side user id from the patron's external
// identifier by stripping the configured prefix.
//
// # Fail Fast
//
// An empty result means no patron is authenticated; calls acting as the
// current user must not proceed.
func (service *Service) remsUserID(externalID string) (string, error) {
	userID := strings.TrimPrefix(externalID, service.cfg.UserIDPrefix)
	if userID == "" {
		return "", ErrNoCurrentUser
	}
	return userID, nil
}

// # Access Decision

// HasAccess reports whether the patron may view restricted metadata now.
//
// # Parameters
//   - ctx: Context for the REMS round-trips.
//   - externalID: The authenticated patron's external identifier.
//   - ignoreCache: Forces a REMS refetch even with a warm cache.
//
// # Returns
//   - bool: true iff the resolved status is [StatusApproved].
//   - error: [*CheckError] when REMS could not be consulted. The caller
//     must deny access in that case — never fail open.
func (service *Service) HasAccess(ctx context.Context, externalID string, ignoreCache bool) (bool, error) {
	userID, err := service.remsUserID(externalID)
	if err != nil {
		return false, err
	}

	// ── 1. Cache Consultation ─────────────────────────────────────────────

	if !ignoreCache {
		if cached := service.cachedPermission(ctx, userID); cached != nil && cached.AccessStatus != "" {
			return cached.AccessStatus.Grants(), nil
		}
	}

	// ── 2. Authoritative Resolution ───────────────────────────────────────

	status, err := service.resolveStatus(ctx, userID)
	if err != nil {
		return false, err
	}

	return status.Grants(), nil
}

// ResolveStatus fetches the patron's current application status from REMS
// and refreshes the session cache.
//
// # Returns
//   - [StatusNotSubmitted] when the patron holds no entitlements. This is
//     a normal terminal state, not a failure.
//   - error: [*CheckError] when REMS could not be consulted.
func (service *Service) ResolveStatus(ctx context.Context, externalID string) (ApplicationStatus, error) {
	userID, err := service.remsUserID(externalID)
	if err != nil {
		return StatusUnknown, err
	}
	return service.resolveStatus(ctx, userID)
}

// ResolveStatusFresh resolves the status with optional cache bypass.
//
// With ignoreCache false a warm cache entry answers directly; otherwise the
// status is re-fetched from REMS and the cache replaced.
func (service *Service) ResolveStatusFresh(ctx context.Context, externalID string, ignoreCache bool) (ApplicationStatus, error) {
	userID, err := service.remsUserID(externalID)
	if err != nil {
		return StatusUnknown, err
	}

	if !ignoreCache {
		if cached := service.cachedPermission(ctx, userID); cached != nil && cached.AccessStatus != "" {
			return cached.AccessStatus, nil
		}
	}

	return service.resolveStatus(ctx, userID)
}

// Permission returns the cached session permission snapshot, or nil when
// nothing is cached or no patron is authenticated.
func (service *Service) Permission(ctx context.Context, externalID string) *SessionPermission {
	userID, err := service.remsUserID(externalID)
	if err != nil {
		return nil
	}
	return service.cachedPermission(ctx, userID)
}

// resolveStatus implements the fetch-map-cache cycle for a derived user id.
func (service *Service) resolveStatus(ctx context.Context, userID string) (ApplicationStatus, error) {
	// ── 1. Entitlement Lookup ─────────────────────────────────────────────

	entitlements, err := service.fetchEntitlements(ctx, userID)
	if err != nil {
		return StatusUnknown, &CheckError{Cause: err}
	}

	// A patron with no entitlements has simply never registered.
	if len(entitlements) == 0 {
		service.storePermission(ctx, userID, &SessionPermission{
			AccessStatus: StatusNotSubmitted,
			IsRegistered: false,
		})
		return StatusNotSubmitted, nil
	}

	// ── 2. Owning Application ─────────────────────────────────────────────

	application, err := service.fetchApplication(ctx, userID, entitlements[0].ApplicationID)
	if err != nil {
		return StatusUnknown, &CheckError{Cause: err}
	}

	// An entitlement whose application has vanished maps to Unknown,
	// which denies access like every non-approved status.
	status := StatusUnknown
	usagePurpose := ""
	if application != nil {
		status = MapStatus(application.State)
		usagePurpose = service.fieldValue(application, service.cfg.FieldUsagePurpose)
	}

	// ── 3. Cache Refresh ──────────────────────────────────────────────────

	service.storePermission(ctx, userID, &SessionPermission{
		AccessStatus: status,
		UsagePurpose: usagePurpose,
		IsRegistered: status != StatusNotSubmitted,
	})

	return status, nil
}

// # Blacklist

// IsBlacklisted reports when the patron was blacklisted for the restricted
// resource, or nil if they are not.
//
// # Returns
//   - *time.Time: The blacklist "added-at" timestamp, or nil.
//   - error: [*CheckError] when REMS could not be consulted.
func (service *Service) IsBlacklisted(ctx context.Context, externalID string, ignoreCache bool) (*time.Time, error) {
	userID, err := service.remsUserID(externalID)
	if err != nil {
		return nil, err
	}

	// ── 1. Cache Consultation ─────────────────────────────────────────────

	if !ignoreCache {
		if cached := service.cachedPermission(ctx, userID); cached != nil && cached.BlacklistChecked {
			return cached.BlacklistedSince, nil
		}
	}

	// ── 2. Blacklist Query (approver context) ─────────────────────────────

	raw, err := service.api.Get(ctx, service.resourceQuery("blacklist", userID), service.cfg.ApproverUserID)
	if err != nil {
		return nil, &CheckError{Cause: err}
	}

	var entries []remsBlacklistEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &CheckError{Cause: err}
	}

	var addedAt *time.Time
	if len(entries) > 0 {
		addedAt = &entries[0].AddedAt
	}

	// ── 3. Cache Refresh (read-modify-write of the whole record) ──────────

	permission := service.cachedPermission(ctx, userID)
	if permission == nil {
		permission = &SessionPermission{}
	}
	permission.BlacklistedSince = addedAt
	permission.BlacklistChecked = true
	service.storePermission(ctx, userID, permission)

	return addedAt, nil
}

// # Logout

// OnLogout finalizes the patron's REMS state when their session ends.
//
// # Behavior
//
//  1. If the session ever registered, close any still-approved
//     applications (skipped otherwise to save a REMS round-trip).
//  2. Unconditionally clear the session permission cache.
//
// Logout must never be blocked by a REMS outage, so every failure here is
// logged and swallowed.
func (service *Service) OnLogout(ctx context.Context, externalID string) {
	userID, err := service.remsUserID(externalID)
	if err != nil {
		return
	}

	if cached := service.cachedPermission(ctx, userID); cached != nil && cached.IsRegistered {
		service.CloseOpenApplications(ctx, externalID)
	}

	if err := service.cache.Clear(ctx, userID); err != nil {
		service.logger.Error("rems_permission_clear_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

// CloseOpenApplications closes every approved application the patron holds
// for the restricted resource, with a fixed audit comment.
//
// Failures are logged, never propagated: this runs during logout.
func (service *Service) CloseOpenApplications(ctx context.Context, externalID string) {
	userID, err := service.remsUserID(externalID)
	if err != nil {
		return
	}

	applications, err := service.fetchApplications(ctx, userID)
	if err != nil {
		service.logger.Error("rems_close_fetch_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return
	}

	for _, application := range applications {
		if MapStatus(application.State) != StatusApproved {
			continue
		}
		if !service.appliesToResource(&application) {
			continue
		}

		body := map[string]any{
			"application-id": application.ID,
			"comment":        closeComment,
		}
		if _, err := service.api.Post(ctx, "applications/close", body, service.cfg.ApproverUserID); err != nil {
			service.logger.Error("rems_close_application_failed",
				slog.String("user_id", userID),
				slog.Int("application_id", application.ID),
				slog.Any("error", err),
			)
		}
	}
}

// # Fetch Helpers

// resourceQuery builds "<endpoint>?resource=...&user=..." with the user id
// escaped; external ids are not guaranteed to be URL-safe.
func (service *Service) resourceQuery(endpoint, userID string) string {
	query := url.Values{}
	query.Set("user", userID)
	query.Set("resource", strconv.Itoa(service.cfg.CatalogueItemID))
	return endpoint + "?" + query.Encode()
}

// fetchEntitlements queries the patron's entitlements for the configured
// restricted resource (approver context).
func (service *Service) fetchEntitlements(ctx context.Context, userID string) ([]remsEntitlement, error) {
	raw, err := service.api.Get(ctx, service.resourceQuery("entitlements", userID), service.cfg.ApproverUserID)
	if err != nil {
		return nil, err
	}

	var entitlements []remsEntitlement
	if err := json.Unmarshal(raw, &entitlements); err != nil {
		return nil, err
	}
	return entitlements, nil
}

// fetchApplications lists the patron's own applications (current-user context).
func (service *Service) fetchApplications(ctx context.Context, userID string) ([]remsApplication, error) {
	raw, err := service.api.Get(ctx, "my-applications", userID)
	if err != nil {
		return nil, err
	}

	var applications []remsApplication
	if err := json.Unmarshal(raw, &applications); err != nil {
		return nil, err
	}
	return applications, nil
}

// fetchApplication finds one application by id, or nil if REMS no longer
// lists it.
func (service *Service) fetchApplication(ctx context.Context, userID string, applicationID int) (*remsApplication, error) {
	applications, err := service.fetchApplications(ctx, userID)
	if err != nil {
		return nil, err
	}

	for index := range applications {
		if applications[index].ID == applicationID {
			return &applications[index], nil
		}
	}
	return nil, nil
}

// appliesToResource reports whether the application covers the configured
// catalogue item.
func (service *Service) appliesToResource(application *remsApplication) bool {
	for _, resource := range application.Resources {
		if resource.CatalogueItemID == service.cfg.CatalogueItemID {
			return true
		}
	}
	return false
}

// fieldValue extracts a form field value by its configured field id,
// looking through whichever form key the response carried.
func (service *Service) fieldValue(application *remsApplication, fieldID string) string {
	forms := append([]remsApplicationForm{application.Form}, application.Forms...)
	for _, form := range forms {
		for _, field := range form.Fields {
			if field.ID == fieldID {
				return field.Value
			}
		}
	}
	return ""
}

// # Cache Helpers

// cachedPermission reads the session cache, degrading a cache failure to a
// miss. A broken cache must not take down access checks.
func (service *Service) cachedPermission(ctx context.Context, userID string) *SessionPermission {
	permission, err := service.cache.Get(ctx, userID)
	if err != nil {
		service.logger.Warn("rems_permission_cache_read_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return nil
	}
	return permission
}

// storePermission writes the refreshed decision, logging write failures.
// The decision itself is still valid when the cache write fails; the next
// request simply pays for another REMS round-trip.
func (service *Service) storePermission(ctx context.Context, userID string, permission *SessionPermission) {
	if err := service.cache.Set(ctx, userID, permission); err != nil {
		service.logger.Warn("rems_permission_cache_write_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}
