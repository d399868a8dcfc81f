// Copyright (c) 2026 Hilla. All rights reserved.

package rems_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hillalabs/hilla/internal/platform/config"
	"github.com/hillalabs/hilla/internal/rems"
)

// discardLogger keeps test output clean while exercising log paths.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClientConfig(baseURL string) config.REMSConfig {
	return config.REMSConfig{
		APIURL:          baseURL,
		APIKey:          "test-api-key",
		AdminUserID:     "rems-admin",
		ApproverUserID:  "rems-approver",
		CatalogueItemID: 7,
		Timeout:         5 * time.Second,
		FieldIdentity:   "fld9",
	}
}

/*
TestClient_Get_SetsAuthHeaders verifies that every call carries the API key
and the acting identity.
*/
func TestClient_Get_SetsAuthHeaders(t *testing.T) {
	var gotAPIKey, gotUserID, gotAccept string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("x-rems-api-key")
		gotUserID = r.Header.Get("x-rems-user-id")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := rems.NewClient(testClientConfig(server.URL), discardLogger())

	raw, err := client.Get(context.Background(), "entitlements?user=alice", "rems-approver")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	assert.Equal(t, "test-api-key", gotAPIKey)
	assert.Equal(t, "rems-approver", gotUserID)
	assert.Equal(t, "application/json", gotAccept)
}

/*
TestClient_Post_SuccessEnvelope verifies that a 200 response is only
accepted when the body carries "success": true.
*/
func TestClient_Post_SuccessEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind rems.APIErrorKind
		wantErr  bool
	}{
		{"explicit_success", `{"success": true, "application-id": 42}`, "", false},
		{"explicit_failure", `{"success": false, "errors": ["already exists"]}`, rems.KindRejected, true},
		{"missing_flag", `{"application-id": 42}`, rems.KindRejected, true},
		{"non_json_body", `oops`, rems.KindRejected, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := rems.NewClient(testClientConfig(server.URL), discardLogger())

			raw, err := client.Post(context.Background(), "applications/create", map[string]any{
				"catalogue-item-ids": []int{7},
			}, "alice")

			if !tt.wantErr {
				require.NoError(t, err)
				assert.JSONEq(t, tt.body, string(raw))
				return
			}

			require.Error(t, err)
			apiErr, ok := err.(*rems.APIError)
			require.True(t, ok, "expected *rems.APIError, got %T", err)
			assert.Equal(t, tt.wantKind, apiErr.Kind)
		})
	}
}

/*
TestClient_NonOKStatus verifies that any non-200 response surfaces as an
HTTP-kind API error carrying the status code.
*/
func TestClient_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	client := rems.NewClient(testClientConfig(server.URL), discardLogger())

	_, err := client.Get(context.Background(), "entitlements", "rems-approver")
	require.Error(t, err)

	apiErr, ok := err.(*rems.APIError)
	require.True(t, ok)
	assert.Equal(t, rems.KindHTTP, apiErr.Kind)
	assert.Equal(t, http.StatusForbidden, apiErr.HTTPStatus)
	assert.Contains(t, apiErr.Body, "invalid api key")
}

/*
TestClient_TransportFailure verifies that an unreachable host surfaces as a
transport-kind API error.
*/
func TestClient_TransportFailure(t *testing.T) {
	// Closed immediately so the address refuses connections.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := rems.NewClient(testClientConfig(server.URL), discardLogger())

	_, err := client.Get(context.Background(), "entitlements", "rems-approver")
	require.Error(t, err)

	apiErr, ok := err.(*rems.APIError)
	require.True(t, ok)
	assert.Equal(t, rems.KindTransport, apiErr.Kind)
	assert.Error(t, apiErr.Unwrap())
}
