package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/export"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/setting"
	"github.com/trezcool/abiboard/core/user"
)

type (
	ServerDeps struct {
		dig.In

		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Store      core.ImageStore

		UserSvc    user.ServiceInterface
		FieldSvc   field.ServiceInterface
		ProfileSvc profile.ServiceInterface
		SettingSvc setting.ServiceInterface
		ExportSvc  export.ServiceInterface
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.Server.MaxUploadSize != "" {
		s.app.Use(middleware.BodyLimit(conf.Server.MaxUploadSize))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))
	authed := v1.Group("", jwt, userMiddleware(s.deps.UserSvc))
	admin := authed.Group("/admin", adminMiddleware(s.deps.UserSvc))

	registerUserAPI(v1, authed, s.deps)
	registerFieldAPI(authed, admin, s.deps)
	registerProfileAPI(authed, s.deps)
	registerSettingAPI(authed, admin, s.deps)
	registerExportAPI(admin, s.deps)
	registerMediaAPI(authed, s.deps)
}

// Start blocks until the server stops. Listen errors are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to AbiBoard API!")
}
