package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/auth"
	"github.com/trezcool/shule/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		AuthSvc        *auth.Service
		Logger         core.Logger
		// SignalShutdown is called when an unrecoverable error is caught so
		// the main process can stop gracefully.
		SignalShutdown func()
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.SignalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	registerAuthAPI(v1, s.opts.AuthSvc)

	// every route under /student requires a student session (an admin
	// session satisfies it too); /admin requires an admin session. Browser
	// navigations landing here unauthenticated get bounced to the login page.
	gate := newGate(s.opts.AuthSvc)
	sg := v1.Group("/student", gate.Require(user.RoleStudent))
	sg.GET("/home", studentHome)
	ag := v1.Group("/admin", gate.Require(user.RoleAdmin))
	ag.GET("/home", adminHome)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Shule API!")
}

func studentHome(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	return ctx.JSON(http.StatusOK, echo.Map{"name": usr.Name, "course_ids": usr.CourseIDs})
}

func adminHome(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	return ctx.JSON(http.StatusOK, echo.Map{"email": usr.Email})
}
