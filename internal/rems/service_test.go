// Copyright (c) 2026 Hilla. All rights reserved.

package rems_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hillalabs/hilla/internal/platform/config"
	"github.com/hillalabs/hilla/internal/rems"
)

// # Test Doubles

// apiCall records one outbound REMS call for order and context assertions.
type apiCall struct {
	method       string
	path         string
	actingUserID string
	body         map[string]any
}

// fakeAPI scripts REMS responses per path without a network listener.
type fakeAPI struct {
	getResponses  map[string]string
	getErrors     map[string]error
	postResponses map[string]string
	postErrors    map[string]error
	calls         []apiCall
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		getResponses:  make(map[string]string),
		getErrors:     make(map[string]error),
		postResponses: make(map[string]string),
		postErrors:    make(map[string]error),
	}
}

func (api *fakeAPI) Get(_ context.Context, path string, actingUserID string) (json.RawMessage, error) {
	api.calls = append(api.calls, apiCall{method: "GET", path: path, actingUserID: actingUserID})

	if err, found := api.getErrors[path]; found {
		return nil, err
	}
	if response, found := api.getResponses[path]; found {
		return json.RawMessage(response), nil
	}
	return nil, fmt.Errorf("fakeAPI: unscripted GET %s", path)
}

func (api *fakeAPI) Post(_ context.Context, path string, body map[string]any, actingUserID string) (json.RawMessage, error) {
	api.calls = append(api.calls, apiCall{method: "POST", path: path, actingUserID: actingUserID, body: body})

	if err, found := api.postErrors[path]; found {
		return nil, err
	}
	if response, found := api.postResponses[path]; found {
		return json.RawMessage(response), nil
	}
	return nil, fmt.Errorf("fakeAPI: unscripted POST %s", path)
}

// postPaths lists the POST calls made, in order.
func (api *fakeAPI) postPaths() []string {
	var paths []string
	for _, call := range api.calls {
		if call.method == "POST" {
			paths = append(paths, call.path)
		}
	}
	return paths
}

// memoryCache is an in-process PermissionCache for service tests.
type memoryCache struct {
	records map[string]*rems.SessionPermission
	cleared []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{records: make(map[string]*rems.SessionPermission)}
}

func (cache *memoryCache) Get(_ context.Context, userID string) (*rems.SessionPermission, error) {
	return cache.records[userID], nil
}

func (cache *memoryCache) Set(_ context.Context, userID string, permission *rems.SessionPermission) error {
	cache.records[userID] = permission
	return nil
}

func (cache *memoryCache) Clear(_ context.Context, userID string) error {
	cache.cleared = append(cache.cleared, userID)
	delete(cache.records, userID)
	return nil
}

// # Fixtures

func testServiceConfig() config.REMSConfig {
	return config.REMSConfig{
		APIURL:            "http://rems.invalid/api",
		APIKey:            "test-api-key",
		AdminUserID:       "rems-admin",
		ApproverUserID:    "rems-approver",
		CatalogueItemID:   7,
		UserIDPrefix:      "urn:hilla:",
		Timeout:           5 * time.Second,
		FieldFirstName:    "fld1",
		FieldLastName:     "fld2",
		FieldEmail:        "fld3",
		FieldUsagePurpose: "fld4",
		FieldAgeConfirmed: "fld5",
		FieldLicense:      "fld6",
		FieldIdentity:     "fld7",
	}
}

func newTestService(api *fakeAPI, cache *memoryCache) *rems.Service {
	return rems.NewService(api, cache, testServiceConfig(), discardLogger())
}

const (
	externalID = "urn:hilla:alice"
	remsUser   = "alice"

	entitlementsPath = "entitlements?resource=7&user=alice"
	blacklistPath    = "blacklist?resource=7&user=alice"
)

// approvedApplications is a my-applications body with one approved
// application covering the restricted catalogue item.
const approvedApplications = `[{
	"application/id": 10,
	"application/state": "application.state/approved",
	"application/resources": [{"catalogue-item/id": 7}],
	"application/forms": [{"form/fields": [{"field/id": "fld4", "field/value": "Family history"}]}]
}]`

// # Access Decision

/*
TestService_HasAccess_Approved resolves an approved entitlement, caches the
decision, and answers the second check from the cache alone.
*/
func TestService_HasAccess_Approved(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[entitlementsPath] = `[{"application-id": 10}]`
	api.getResponses["my-applications"] = approvedApplications

	cache := newMemoryCache()
	service := newTestService(api, cache)
	ctx := context.Background()

	granted, err := service.HasAccess(ctx, externalID, false)
	require.NoError(t, err)
	assert.True(t, granted)

	// The decision was cached with the usage purpose from the form.
	cached := cache.records[remsUser]
	require.NotNil(t, cached)
	assert.Equal(t, rems.StatusApproved, cached.AccessStatus)
	assert.Equal(t, "Family history", cached.UsagePurpose)
	assert.True(t, cached.IsRegistered)

	// A warm cache answers without touching REMS again.
	callsBefore := len(api.calls)
	granted, err = service.HasAccess(ctx, externalID, false)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Len(t, api.calls, callsBefore)

	// ignoreCache forces a refetch.
	granted, err = service.HasAccess(ctx, externalID, true)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Greater(t, len(api.calls), callsBefore)
}

/*
TestService_HasAccess_NeverRegistered treats an empty entitlement list as
the NotSubmitted terminal state, not a failure.
*/
func TestService_HasAccess_NeverRegistered(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[entitlementsPath] = `[]`

	cache := newMemoryCache()
	service := newTestService(api, cache)

	granted, err := service.HasAccess(context.Background(), externalID, false)
	require.NoError(t, err)
	assert.False(t, granted)

	cached := cache.records[remsUser]
	require.NotNil(t, cached)
	assert.Equal(t, rems.StatusNotSubmitted, cached.AccessStatus)
	assert.False(t, cached.IsRegistered)
}

/*
TestService_HasAccess_FailsClosed surfaces backend failures as CheckError
so callers deny access rather than assume it.
*/
func TestService_HasAccess_FailsClosed(t *testing.T) {
	api := newFakeAPI()
	api.getErrors[entitlementsPath] = &rems.APIError{Kind: rems.KindTransport, URL: "http://rems.invalid"}

	service := newTestService(api, newMemoryCache())

	granted, err := service.HasAccess(context.Background(), externalID, false)
	assert.False(t, granted)

	var checkErr *rems.CheckError
	require.ErrorAs(t, err, &checkErr)
}

/*
TestService_HasAccess_NoCurrentUser rejects access checks without a linked
patron identity before any REMS traffic happens.
*/
func TestService_HasAccess_NoCurrentUser(t *testing.T) {
	api := newFakeAPI()
	service := newTestService(api, newMemoryCache())

	granted, err := service.HasAccess(context.Background(), "urn:hilla:", false)
	assert.False(t, granted)
	require.ErrorIs(t, err, rems.ErrNoCurrentUser)
	assert.Empty(t, api.calls)
}

/*
TestService_ResolveStatus_VanishedApplication maps an entitlement whose
application REMS no longer lists to Unknown, which denies access.
*/
func TestService_ResolveStatus_VanishedApplication(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[entitlementsPath] = `[{"application-id": 99}]`
	api.getResponses["my-applications"] = `[]`

	service := newTestService(api, newMemoryCache())

	status, err := service.ResolveStatus(context.Background(), externalID)
	require.NoError(t, err)
	assert.Equal(t, rems.StatusUnknown, status)
	assert.False(t, status.Grants())
}

/*
TestService_ResolveStatus_SingleFormObject reads the usage purpose from the
"application/form" object shape of the my-applications response.
*/
func TestService_ResolveStatus_SingleFormObject(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[entitlementsPath] = `[{"application-id": 10}]`
	api.getResponses["my-applications"] = `[{
		"application/id": 10,
		"application/state": "application.state/approved",
		"application/resources": [{"catalogue-item/id": 7}],
		"application/form": {"form/fields": [{"field/id": "fld4", "field/value": "Family history"}]}
	}]`

	cache := newMemoryCache()
	service := newTestService(api, cache)

	status, err := service.ResolveStatus(context.Background(), externalID)
	require.NoError(t, err)
	assert.Equal(t, rems.StatusApproved, status)

	cached := cache.records[remsUser]
	require.NotNil(t, cached)
	assert.Equal(t, "Family history", cached.UsagePurpose)
}

/*
TestService_EscapesUserIDInQueries keeps external ids with reserved URL
characters from corrupting the entitlement query string.
*/
func TestService_EscapesUserIDInQueries(t *testing.T) {
	api := newFakeAPI()
	api.getResponses["entitlements?resource=7&user=al+ice%26co"] = `[]`

	service := newTestService(api, newMemoryCache())

	granted, err := service.HasAccess(context.Background(), "urn:hilla:al ice&co", false)
	require.NoError(t, err)
	assert.False(t, granted)
}

// # Blacklist

/*
TestService_IsBlacklisted queries the blacklist in approver context, caches
the result, and answers the second check from the cache.
*/
func TestService_IsBlacklisted(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[blacklistPath] = `[{"blacklist/added-at": "2026-03-14T09:00:00Z"}]`

	cache := newMemoryCache()
	service := newTestService(api, cache)
	ctx := context.Background()

	addedAt, err := service.IsBlacklisted(ctx, externalID, false)
	require.NoError(t, err)
	require.NotNil(t, addedAt)
	assert.Equal(t, 2026, addedAt.Year())

	// The query ran in approver context.
	require.NotEmpty(t, api.calls)
	assert.Equal(t, "rems-approver", api.calls[0].actingUserID)

	// Second check is served from the cached record.
	callsBefore := len(api.calls)
	addedAt, err = service.IsBlacklisted(ctx, externalID, false)
	require.NoError(t, err)
	require.NotNil(t, addedAt)
	assert.Len(t, api.calls, callsBefore)
}

/*
TestService_IsBlacklisted_CleanPatron caches the negative result too, so a
clean patron does not re-query REMS every request.
*/
func TestService_IsBlacklisted_CleanPatron(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[blacklistPath] = `[]`

	cache := newMemoryCache()
	service := newTestService(api, cache)
	ctx := context.Background()

	addedAt, err := service.IsBlacklisted(ctx, externalID, false)
	require.NoError(t, err)
	assert.Nil(t, addedAt)

	callsBefore := len(api.calls)
	addedAt, err = service.IsBlacklisted(ctx, externalID, false)
	require.NoError(t, err)
	assert.Nil(t, addedAt)
	assert.Len(t, api.calls, callsBefore)
}

// # Logout

/*
TestService_OnLogout_Unregistered clears the cache without any close
round-trip when the session never registered.
*/
func TestService_OnLogout_Unregistered(t *testing.T) {
	api := newFakeAPI()
	cache := newMemoryCache()
	cache.records[remsUser] = &rems.SessionPermission{
		AccessStatus: rems.StatusNotSubmitted,
		IsRegistered: false,
	}

	service := newTestService(api, cache)
	service.OnLogout(context.Background(), externalID)

	assert.Empty(t, api.postPaths())
	assert.Contains(t, cache.cleared, remsUser)
	assert.Nil(t, cache.records[remsUser])
}

/*
TestService_OnLogout_ClosesApprovedApplications closes every approved
application for the restricted resource with the fixed audit comment.
*/
func TestService_OnLogout_ClosesApprovedApplications(t *testing.T) {
	api := newFakeAPI()
	api.getResponses["my-applications"] = approvedApplications
	api.postResponses["applications/close"] = `{"success": true}`

	cache := newMemoryCache()
	cache.records[remsUser] = &rems.SessionPermission{
		AccessStatus: rems.StatusApproved,
		IsRegistered: true,
	}

	service := newTestService(api, cache)
	service.OnLogout(context.Background(), externalID)

	require.Equal(t, []string{"applications/close"}, api.postPaths())

	// The close ran in approver context with the audit comment.
	var closeCall apiCall
	for _, call := range api.calls {
		if call.path == "applications/close" {
			closeCall = call
		}
	}
	assert.Equal(t, "rems-approver", closeCall.actingUserID)
	assert.Equal(t, 10, closeCall.body["application-id"])
	assert.Equal(t, "RMS_auto_close_logout", closeCall.body["comment"])

	assert.Contains(t, cache.cleared, remsUser)
}

/*
TestService_OnLogout_SurvivesOutage must clear the session cache even when
REMS is unreachable; logout is never blocked.
*/
func TestService_OnLogout_SurvivesOutage(t *testing.T) {
	api := newFakeAPI()
	api.getErrors["my-applications"] = &rems.APIError{Kind: rems.KindTransport}

	cache := newMemoryCache()
	cache.records[remsUser] = &rems.SessionPermission{
		AccessStatus: rems.StatusApproved,
		IsRegistered: true,
	}

	service := newTestService(api, cache)
	service.OnLogout(context.Background(), externalID)

	assert.Contains(t, cache.cleared, remsUser)
}

// # Registration Workflow

func testRegistrant() rems.Registrant {
	return rems.Registrant{
		ExternalID:      externalID,
		Email:           "alice@example.fi",
		FirstName:       "Alice",
		LastName:        "Virtanen",
		UsagePurpose:    "Family history",
		AgeConfirmed:    true,
		LicenseAccepted: true,
		IdentityToken:   "010190-123A",
	}
}

/*
TestService_Register_Success drives all four workflow steps in order and
refreshes the session cache to Submitted.
*/
func TestService_Register_Success(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[entitlementsPath] = `[]`
	api.postResponses["users/create"] = `{"success": true}`
	api.postResponses["applications/create"] = `{"success": true, "application-id": 42}`
	api.postResponses["applications/save-draft"] = `{"success": true}`
	api.postResponses["applications/submit"] = `{"success": true}`

	cache := newMemoryCache()
	service := newTestService(api, cache)

	require.NoError(t, service.Register(context.Background(), testRegistrant()))

	// Steps ran strictly in workflow order.
	assert.Equal(t, []string{
		"users/create",
		"applications/create",
		"applications/save-draft",
		"applications/submit",
	}, api.postPaths())

	// The user upsert ran in admin context; everything else as the patron.
	for _, call := range api.calls {
		switch call.path {
		case "users/create":
			assert.Equal(t, "rems-admin", call.actingUserID)
		case "applications/create", "applications/save-draft", "applications/submit":
			assert.Equal(t, remsUser, call.actingUserID)
		}
	}

	// Draft fields carry the configured field ids, acknowledgements as strings.
	var draftCall apiCall
	for _, call := range api.calls {
		if call.path == "applications/save-draft" {
			draftCall = call
		}
	}
	assert.Equal(t, 42, draftCall.body["application-id"])

	fieldValues, ok := draftCall.body["field-values"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, fieldValues, 7)

	byField := make(map[string]string, len(fieldValues))
	for _, entry := range fieldValues {
		byField[entry["field"].(string)] = entry["value"].(string)
	}
	assert.Equal(t, "Alice", byField["fld1"])
	assert.Equal(t, "true", byField["fld5"])
	assert.Equal(t, "true", byField["fld6"])
	assert.Equal(t, "010190-123A", byField["fld7"])

	// The session cache reflects the submitted application.
	cached := cache.records[remsUser]
	require.NotNil(t, cached)
	assert.Equal(t, rems.StatusSubmitted, cached.AccessStatus)
	assert.Equal(t, "Family history", cached.UsagePurpose)
	assert.True(t, cached.IsRegistered)
}

/*
TestService_Register_MissingIdentityToken rejects a registration without an
identity token before any REMS round-trip, leaving nothing behind.
*/
func TestService_Register_MissingIdentityToken(t *testing.T) {
	api := newFakeAPI()
	service := newTestService(api, newMemoryCache())

	registrant := testRegistrant()
	registrant.IdentityToken = "   "

	err := service.Register(context.Background(), registrant)
	require.ErrorIs(t, err, rems.ErrMissingIdentityToken)
	assert.Empty(t, api.calls)
}

/*
TestService_Register_AlreadyEntitled refuses to re-register an approved
patron, consulting REMS directly rather than any cached denial.
*/
func TestService_Register_AlreadyEntitled(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[entitlementsPath] = `[{"application-id": 10}]`
	api.getResponses["my-applications"] = approvedApplications

	cache := newMemoryCache()
	// A stale cached denial must not matter.
	cache.records[remsUser] = &rems.SessionPermission{AccessStatus: rems.StatusNotSubmitted}

	service := newTestService(api, cache)

	err := service.Register(context.Background(), testRegistrant())
	require.ErrorIs(t, err, rems.ErrAlreadyEntitled)
	assert.Empty(t, api.postPaths())
}

/*
TestService_Register_MissingApplicationID fails the create step when REMS
returns success without an application id, and never reaches save-draft.
*/
func TestService_Register_MissingApplicationID(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[entitlementsPath] = `[]`
	api.postResponses["users/create"] = `{"success": true}`
	api.postResponses["applications/create"] = `{"success": true}`

	service := newTestService(api, newMemoryCache())

	err := service.Register(context.Background(), testRegistrant())

	var regErr *rems.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "applications/create", regErr.Step)
	require.ErrorIs(t, err, rems.ErrCreateFailed)

	assert.Equal(t, []string{"users/create", "applications/create"}, api.postPaths())
}

/*
TestService_Register_AbortsOnStepFailure stops at the first failing step;
the draft stays behind on the REMS side and submit is never attempted.
*/
func TestService_Register_AbortsOnStepFailure(t *testing.T) {
	api := newFakeAPI()
	api.getResponses[entitlementsPath] = `[]`
	api.postResponses["users/create"] = `{"success": true}`
	api.postResponses["applications/create"] = `{"success": true, "application-id": 42}`
	api.postErrors["applications/save-draft"] = &rems.APIError{Kind: rems.KindRejected}

	cache := newMemoryCache()
	service := newTestService(api, cache)

	err := service.Register(context.Background(), testRegistrant())

	var regErr *rems.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "applications/save-draft", regErr.Step)

	assert.NotContains(t, api.postPaths(), "applications/submit")

	// A failed registration must not look submitted.
	cached := cache.records[remsUser]
	if cached != nil {
		assert.NotEqual(t, rems.StatusSubmitted, cached.AccessStatus)
	}
}

/*
TestService_Register_PreconditionFailure wraps an unreachable entitlement
check as a workflow failure before any step runs.
*/
func TestService_Register_PreconditionFailure(t *testing.T) {
	api := newFakeAPI()
	api.getErrors[entitlementsPath] = errors.New("connection refused")

	service := newTestService(api, newMemoryCache())

	err := service.Register(context.Background(), testRegistrant())

	var regErr *rems.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "entitlements", regErr.Step)
	assert.Empty(t, api.postPaths())
}
