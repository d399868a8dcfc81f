// Copyright (c) 2026 Hilla. All rights reserved.

package rems_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hillalabs/hilla/internal/rems"
)

/*
TestMapStatus verifies the mapping from REMS state strings to application
statuses, including unrecognized input.
*/
func TestMapStatus(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  rems.ApplicationStatus
	}{
		{"draft", "application.state/draft", rems.StatusDraft},
		{"submitted", "application.state/submitted", rems.StatusSubmitted},
		{"approved", "application.state/approved", rems.StatusApproved},
		{"rejected", "application.state/rejected", rems.StatusRejected},
		{"revoked", "application.state/revoked", rems.StatusRevoked},
		{"closed", "application.state/closed", rems.StatusClosed},
		{"expired", "application.state/expired", rems.StatusExpired},
		{"unrecognized", "application.state/frozen", rems.StatusUnknown},
		{"empty", "", rems.StatusUnknown},
		{"garbage", "not-a-state", rems.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rems.MapStatus(tt.state))
		})
	}
}

/*
TestApplicationStatus_Grants confirms that approval is the only status
granting access.
*/
func TestApplicationStatus_Grants(t *testing.T) {
	all := []rems.ApplicationStatus{
		rems.StatusDraft,
		rems.StatusSubmitted,
		rems.StatusApproved,
		rems.StatusRejected,
		rems.StatusRevoked,
		rems.StatusClosed,
		rems.StatusExpired,
		rems.StatusNotSubmitted,
		rems.StatusUnknown,
	}

	for _, status := range all {
		if status == rems.StatusApproved {
			assert.True(t, status.Grants())
			continue
		}
		assert.False(t, status.Grants(), "status %q must not grant access", status)
	}
}
