package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/auth"
	"github.com/trezcool/shule/core/user"
)

// kindStatuses maps auth failure kinds to HTTP status codes. Unknown-identity
// and wrong-password share one kind and therefore one status.
var kindStatuses = map[auth.Kind]int{
	auth.KindMissingCredential:   http.StatusBadRequest,
	auth.KindInvalidCredential:   http.StatusUnauthorized,
	auth.KindInactiveAccount:     http.StatusForbidden,
	auth.KindOTPNotFound:         http.StatusBadRequest,
	auth.KindOTPExpired:          http.StatusBadRequest,
	auth.KindOTPInvalid:          http.StatusBadRequest,
	auth.KindOTPAttemptsExceeded: http.StatusTooManyRequests,
	auth.KindNotAuthorizedEmail:  http.StatusForbidden,
	auth.KindNoToken:             http.StatusUnauthorized,
	auth.KindInvalidToken:        http.StatusUnauthorized,
	auth.KindInsufficientRole:    http.StatusForbidden,
	auth.KindTooManyRequests:     http.StatusTooManyRequests,
	auth.KindInternal:            http.StatusInternalServerError,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *auth.Error:
			code = kindStatuses[origErr.Kind]
			if code == 0 {
				code = http.StatusInternalServerError
			}
			message = echo.Map{
				"error":     origErr.Message,
				"code":      string(origErr.Kind),
				"retryable": origErr.Retryable(),
			}
			if origErr.Kind == auth.KindInternal {
				msg := http.StatusText(code)
				logger.Error(msg, errors.Wrap(err, msg), contextUser(ctx))
			}
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextUser(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func contextUser(ctx echo.Context) user.User {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr
	}
	return user.User{}
}
