package echoapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/auth"
)

const (
	contextClaimsKey = "claims"
	contextUserKey   = "user"
)

// tokenFromRequest extracts the session token: the Authorization bearer
// header wins over the auth cookie.
func tokenFromRequest(ctx echo.Context) string {
	header := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := ctx.Cookie(core.Conf.Auth.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// gate authenticates requests and enforces a per-route-group role floor.
type gate struct {
	svc *auth.Service
}

func newGate(svc *auth.Service) *gate {
	return &gate{svc: svc}
}

// Require validates the request token and checks the role requirement;
// an admin session satisfies a student requirement, never the reverse.
// Authenticated claims and user are attached to the echo context.
func (g *gate) Require(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, claims, err := g.svc.Validate(ctx.Request().Context(), tokenFromRequest(ctx))
			if err != nil {
				return challenge(ctx, err)
			}
			if !claims.HasRole(role) {
				return auth.ErrInsufficientRole
			}
			ctx.Set(contextClaimsKey, *claims)
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

// challenge redirects unauthenticated browser navigations to the frontend
// login page with the original path in `next`; API clients get the JSON error.
func challenge(ctx echo.Context, err error) error {
	switch auth.KindOf(err) {
	case auth.KindNoToken, auth.KindInvalidToken:
	default:
		return err
	}
	if !wantsHTML(ctx.Request()) {
		return err
	}

	loginURL, uErr := url.Parse(core.Conf.FrontendBaseURL + core.Conf.FrontendLoginURL)
	if uErr != nil {
		return err
	}
	q := loginURL.Query()
	q.Set("next", ctx.Request().URL.Path)
	loginURL.RawQuery = q.Encode()
	return ctx.Redirect(http.StatusFound, loginURL.String())
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), echo.MIMETextHTML)
}
