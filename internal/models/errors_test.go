package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ALastoff/LicenseView/internal/models"
)

func TestAuthenticationErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *models.AuthenticationError
		want string
	}{
		{
			name: "both_protocols_failed",
			err: &models.AuthenticationError{
				ModernCause: errors.New("token endpoint returned 401"),
				LegacyCause: errors.New("session header absent"),
			},
			want: "authentication failed on all protocols: modern: token endpoint returned 401; legacy: session header absent",
		},
		{
			name: "modern_only",
			err:  &models.AuthenticationError{ModernCause: errors.New("no access_token in response")},
			want: "authentication failed: modern: no access_token in response",
		},
		{
			name: "legacy_only",
			err:  &models.AuthenticationError{LegacyCause: errors.New("connection refused")},
			want: "authentication failed: legacy: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAuthenticationErrorUnwrapsBothCauses(t *testing.T) {
	modern := errors.New("modern failure")
	legacy := errors.New("legacy failure")
	err := &models.AuthenticationError{ModernCause: modern, LegacyCause: legacy}

	assert.True(t, errors.Is(err, modern))
	assert.True(t, errors.Is(err, legacy))
}

func TestErrorClassifiers(t *testing.T) {
	unavailable := fmt.Errorf("fetching vpgs: %w", &models.EndpointUnavailableError{Path: "/v1/vpgs"})
	transient := fmt.Errorf("call failed: %w", &models.TransientNetworkError{Cause: errors.New("timeout")})
	auth := fmt.Errorf("run aborted: %w", &models.AuthenticationError{ModernCause: errors.New("x")})
	tlsErr := fmt.Errorf("handshake: %w", &models.TLSValidationError{Pinned: true, Expected: "aa", Actual: "bb"})

	assert.True(t, models.IsEndpointUnavailable(unavailable))
	assert.False(t, models.IsEndpointUnavailable(transient))

	assert.True(t, models.IsTransient(transient))
	assert.False(t, models.IsTransient(unavailable))

	assert.True(t, models.IsAuthenticationFailure(auth))
	assert.True(t, models.IsTLSValidationFailure(tlsErr))
	assert.False(t, models.IsTLSValidationFailure(auth))
}

func TestTLSValidationErrorDistinguishesPinning(t *testing.T) {
	pinned := &models.TLSValidationError{Pinned: true, Expected: "aabb", Actual: "ccdd"}
	assert.Contains(t, pinned.Error(), "pinning failed")
	assert.Contains(t, pinned.Error(), "aabb")
	assert.Contains(t, pinned.Error(), "ccdd")

	chain := &models.TLSValidationError{Cause: errors.New("x509: certificate signed by unknown authority")}
	assert.Contains(t, chain.Error(), "tls validation failed")
	assert.NotContains(t, chain.Error(), "pinning")
}

func TestHistoryCorruptionErrorWrapsCause(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &models.HistoryCorruptionError{Path: "/tmp/history.json", Cause: cause}

	assert.Contains(t, err.Error(), "/tmp/history.json")
	assert.True(t, errors.Is(err, cause))
}
