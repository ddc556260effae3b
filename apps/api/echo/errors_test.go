package echoapi

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/auth"
	logsvc "github.com/trezcool/shule/services/logger"
)

func newHandlerContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func Test_appHTTPErrorHandler_authFailures(t *testing.T) {
	logger := logsvc.NewStdLogger(log.New(io.Discard, "", 0))
	handler := newAppHTTPErrorHandler(logger, func() {})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "kind-only failure",
			err:        &auth.Error{Kind: auth.KindInvalidCredential, Message: "invalid credentials"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   string(auth.KindInvalidCredential),
		},
		{
			name:       "wrapped kind-only failure",
			err:        errors.Wrap(&auth.Error{Kind: auth.KindOTPExpired, Message: "code has expired"}, "verifying code"),
			wantStatus: http.StatusBadRequest,
			wantCode:   string(auth.KindOTPExpired),
		},
		{
			name:       "role failure",
			err:        auth.ErrInsufficientRole,
			wantStatus: http.StatusForbidden,
			wantCode:   string(auth.KindInsufficientRole),
		},
		{
			name:       "internal failure with cause",
			err:        errors.Wrap(&auth.Error{Kind: auth.KindInternal, Message: "something went wrong", Err: errors.New("db gone")}, "logging in"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   string(auth.KindInternal),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, rec := newHandlerContext()
			handler(tt.err, ctx)

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func Test_appHTTPErrorHandler_shutdown(t *testing.T) {
	logger := logsvc.NewStdLogger(log.New(io.Discard, "", 0))

	var signaled bool
	handler := newAppHTTPErrorHandler(logger, func() { signaled = true })

	ctx, rec := newHandlerContext()
	handler(core.NewShutdownError("db connection pool exhausted"), ctx)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, signaled, "shutdown errors must signal the main process")
}
