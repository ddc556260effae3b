package auth

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "bare sentinel", err: errInvalidCredentials, want: KindInvalidCredential},
		{name: "wrapped sentinel", err: errors.Wrap(errOTPInvalid, "verifying code"), want: KindOTPInvalid},
		{name: "role sentinel", err: ErrInsufficientRole, want: KindInsufficientRole},
		{name: "internal with cause", err: internalError(errors.New("boom"), "loading user"), want: KindInternal},
		{name: "plain error", err: errors.New("boom"), want: KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}

	assert.Equal(t, Kind(""), KindOf(nil))
}

// Kind-only failures carry no wrapped cause; they must still survive
// errors.Cause so transport layers can type-switch on the typed error.
func TestError_causeResolution(t *testing.T) {
	got := errors.Cause(errors.Wrap(errNoToken, "authorizing request"))
	aerr, ok := got.(*Error)
	require.True(t, ok, "errors.Cause must resolve to the typed error, got %T", got)
	assert.Equal(t, KindNoToken, aerr.Kind)

	got = errors.Cause(errInvalidCredentials)
	aerr, ok = got.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindInvalidCredential, aerr.Kind)

	// internal failures keep their wrapped cause reachable via Unwrap
	ierr := internalError(errors.New("db gone"), "fetching user")
	assert.Contains(t, ierr.Error(), "db gone")
	got = errors.Cause(errors.Wrap(ierr, "logging in"))
	aerr, ok = got.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindInternal, aerr.Kind)
}

func TestError_Retryable(t *testing.T) {
	assert.True(t, internalError(errors.New("boom"), "pinging db").Retryable())
	assert.False(t, errTooManyRequests.Retryable())
	assert.False(t, errOTPInvalid.Retryable())
	assert.False(t, ErrInsufficientRole.Retryable())
}
