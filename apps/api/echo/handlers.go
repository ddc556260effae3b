package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/auth"
	"github.com/trezcool/shule/core/user"
)

type authApi struct {
	svc *auth.Service
}

func registerAuthAPI(g *echo.Group, svc *auth.Service) {
	api := authApi{svc: svc}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/otp/request", api.requestOTP)
	ag.POST("/otp/verify", api.verifyOTP)
	ag.POST("/token-refresh", api.refreshToken)
	ag.POST("/logout", api.logout)

	gate := newGate(svc)
	ag.GET("/me", api.me, gate.Require(user.RoleStudent))
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.Login(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}

	setAuthCookie(ctx, res.Session)
	return ctx.JSON(http.StatusOK, res)
}

func (api *authApi) requestOTP(ctx echo.Context) error {
	var data OTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OTPRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	issue, err := api.svc.RequestOTP(ctx.Request().Context(), data.Email)
	if err != nil {
		return errors.Wrap(err, "requesting code")
	}
	return ctx.JSON(http.StatusOK, issue)
}

func (api *authApi) verifyOTP(ctx echo.Context) error {
	var data OTPVerifyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OTPVerifyRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.VerifyOTP(ctx.Request().Context(), data.Email, data.Code)
	if err != nil {
		return errors.Wrap(err, "verifying code")
	}

	setAuthCookie(ctx, res.Session)
	return ctx.JSON(http.StatusOK, res)
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	sess, err := api.svc.Refresh(ctx.Request().Context(), tokenFromRequest(ctx))
	if err != nil {
		return errors.Wrap(err, "refreshing session")
	}
	setAuthCookie(ctx, sess)
	return ctx.JSON(http.StatusOK, sess)
}

func (api *authApi) logout(ctx echo.Context) error {
	api.svc.Logout(ctx.Request().Context(), tokenFromRequest(ctx))
	clearAuthCookie(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) me(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	return ctx.JSON(http.StatusOK, usr)
}

// Cookies

func setAuthCookie(ctx echo.Context, sess auth.Session) {
	ctx.SetCookie(&http.Cookie{
		Name:     core.Conf.Auth.CookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(time.Until(sess.ExpiresAt) / time.Second),
		Secure:   core.Conf.Auth.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAuthCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     core.Conf.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   core.Conf.Auth.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Bindings

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	OTPRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	OTPVerifyRequest struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"code" validate:"required"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return core.Validate.Struct(lr)
}

func (or *OTPRequest) Validate() error {
	or.Email = core.CleanString(or.Email, true /* lower */)
	return core.Validate.Struct(or)
}

func (ov *OTPVerifyRequest) Validate() error {
	ov.Email = core.CleanString(ov.Email, true /* lower */)
	ov.Code = core.CleanString(ov.Code, false)
	return core.Validate.Struct(ov)
}
