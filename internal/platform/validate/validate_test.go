// Copyright (c) 2026 Hilla. All rights reserved.

package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hillalabs/hilla/internal/platform/apperr"
	"github.com/hillalabs/hilla/internal/platform/validate"
)

/*
TestValidator_PassingChain verifies that a chain with no failures returns nil.
*/
func TestValidator_PassingChain(t *testing.T) {
	v := &validate.Validator{}

	err := v.
		Required("name", "Aino").
		Email("email", "aino@example.fi").
		MinLen("purpose", "research", 3).
		True("license", true, "Must be accepted").
		Err()

	assert.NoError(t, err)
	assert.False(t, v.HasErrors())
}

/*
TestValidator_CollectsAllFailures verifies that every failing rule produces
its own field error inside a single VALIDATION_ERROR.
*/
func TestValidator_CollectsAllFailures(t *testing.T) {
	v := &validate.Validator{}

	err := v.
		Required("name", "   ").
		Email("email", "not-an-email").
		True("age_confirmed", false, "Must be confirmed").
		Err()

	require.Error(t, err)

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "VALIDATION_ERROR", appError.Code)
	assert.Len(t, appError.Details, 3)
}

/*
TestValidator_Slug verifies slug format acceptance and rejection.
*/
func TestValidator_Slug(t *testing.T) {
	cases := []struct {
		value string
		valid bool
	}{
		{"kalevala-1849", true},
		{"a", true},
		{"-leading", false},
		{"trailing-", false},
		{"UPPER", false},
		{"", false},
	}

	for _, testCase := range cases {
		v := &validate.Validator{}
		err := v.Slug("slug", testCase.value).Err()

		if testCase.valid {
			assert.NoError(t, err, "slug %q should be valid", testCase.value)
		} else {
			assert.Error(t, err, "slug %q should be invalid", testCase.value)
		}
	}
}

/*
TestRequiredError verifies the single-field shortcut shape.
*/
func TestRequiredError(t *testing.T) {
	err := validate.RequiredError("identity_token", "is required")

	require.NotNil(t, err)
	assert.Equal(t, "VALIDATION_ERROR", err.Code)
	require.Len(t, err.Details, 1)
	assert.Equal(t, "identity_token", err.Details[0].Field)
}
