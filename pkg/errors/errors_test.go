package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryOf_UnwrapsWrappedErrors(t *testing.T) {
	base := NewConfigurationError("three d secure disabled")
	wrapped := fmt.Errorf("verify: %w", base)

	assert.Equal(t, CategoryConfiguration, CategoryOf(wrapped))
	assert.True(t, IsConfiguration(wrapped))
	assert.False(t, IsServer(wrapped))
	assert.Equal(t, Category(""), CategoryOf(stderrors.New("plain")))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "server error includes status",
			err:  NewServerError(422, "Failed to authenticate", "{}"),
			want: "Failed to authenticate (status 422)",
		},
		{
			name: "transport error includes cause",
			err:  NewTransportError(KindNetwork, "request failed", stderrors.New("connection refused")),
			want: "request failed: connection refused",
		},
		{
			name: "server error without status",
			err:  NewServerError(0, "Embedded authentication failed", ""),
			want: "Embedded authentication failed",
		},
		{
			name: "wrapped collaborator error",
			err:  Wrap(CategoryConfiguration, "Unable to start redirect", stderrors.New("no browser")),
			want: "Unable to start redirect: no browser",
		},
		{
			name: "validation error is the message",
			err:  NewValidationError("path", "Path cannot be null"),
			want: "Path cannot be null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestReasonForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Reason
	}{
		{http.StatusUnauthorized, ReasonAuthentication},
		{http.StatusForbidden, ReasonAuthorization},
		{http.StatusUnprocessableEntity, ReasonUnprocessable},
		{http.StatusUpgradeRequired, ReasonUpgradeRequired},
		{http.StatusTooManyRequests, ReasonRateLimited},
		{http.StatusInternalServerError, ReasonServer},
		{http.StatusServiceUnavailable, ReasonUnavailable},
		{http.StatusTeapot, ReasonUnexpected},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ReasonForStatus(tt.status))
		})
	}
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewServerError(500, "boom", "body"))

	sdkErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, 500, sdkErr.StatusCode)
	assert.Equal(t, ReasonServer, sdkErr.Reason())
	assert.Equal(t, "body", sdkErr.Body)
}
