package auth

import "github.com/pkg/errors"

// Kind is a machine-readable failure kind. Callers branch on kinds, never on
// message text.
type Kind string

const (
	KindMissingCredential   Kind = "missing_credential"
	KindInvalidCredential   Kind = "invalid_credentials"
	KindInactiveAccount     Kind = "inactive_account"
	KindOTPNotFound         Kind = "otp_not_found"
	KindOTPExpired          Kind = "otp_expired"
	KindOTPInvalid          Kind = "invalid_otp"
	KindOTPAttemptsExceeded Kind = "too_many_attempts"
	KindNotAuthorizedEmail  Kind = "email_not_authorized"
	KindNoToken             Kind = "no_token"
	KindInvalidToken        Kind = "invalid_token"
	KindInsufficientRole    Kind = "insufficient_role"
	KindTooManyRequests     Kind = "too_many_requests"
	KindInternal            Kind = "internal_error"
)

// Error is a typed failure result carrying a kind and a user-facing message.
// Only KindInternal errors wrap an underlying cause; the cause is logged
// server-side and never serialized to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Error deliberately does not implement the pkg/errors causer interface:
// errors.Cause must stop at the typed failure so transport layers can
// type-switch on it, even for kind-only errors with no wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may sensibly retry the same request.
// Only transient downstream faults qualify; rate-limited callers must wait
// out the window instead.
func (e *Error) Retryable() bool {
	return e.Kind == KindInternal
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func internalError(err error, msg string) *Error {
	return &Error{Kind: KindInternal, Message: "something went wrong", Err: errors.Wrap(err, msg)}
}

// KindOf extracts the failure kind from err, or KindInternal for any
// non-auth error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if aerr, ok := errors.Cause(err).(*Error); ok {
		return aerr.Kind
	}
	if aerr := (*Error)(nil); errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindInternal
}

// ErrInsufficientRole is returned by route gates when the session's role does
// not satisfy the route's requirement.
var ErrInsufficientRole = newError(KindInsufficientRole, "permission denied")

var (
	errMissingCredential   = newError(KindMissingCredential, "username and password are required")
	errInvalidCredentials  = newError(KindInvalidCredential, "invalid credentials")
	errAccountDeactivated  = newError(KindInactiveAccount, "account deactivated")
	errOTPNotFound         = newError(KindOTPNotFound, "no active code found; request a new one")
	errOTPExpired          = newError(KindOTPExpired, "code has expired; request a new one")
	errOTPInvalid          = newError(KindOTPInvalid, "invalid code")
	errOTPAttemptsExceeded = newError(KindOTPAttemptsExceeded, "too many failed attempts; request a new code")
	errNotAuthorizedEmail  = newError(KindNotAuthorizedEmail, "email not authorized for admin access")
	errNoToken             = newError(KindNoToken, "authentication required")
	errInvalidToken        = newError(KindInvalidToken, "invalid or expired session")
	errTooManyRequests     = newError(KindTooManyRequests, "too many requests; try again later")
)
