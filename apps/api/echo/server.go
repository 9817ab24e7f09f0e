package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
	livesvc "github.com/trezcool/chuo/services/live"
)

type (
	ServerDeps struct {
		Conf            *core.Config
		Logger          core.Logger
		Issuer          *user.Issuer
		UserSvc         user.Service
		AcademicSvc     academic.Service
		AttendanceSvc   attendance.Service
		NotificationSvc *notification.Service
		Hub             *livesvc.Hub
		Validate        *validator.Validate
		Translator      ut.Translator
	}

	Server struct {
		app      *echo.Echo
		deps     ServerDeps
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Issuer, "Issuer"),
		vala.IsNotNil(deps.UserSvc, "UserSvc"),
		vala.IsNotNil(deps.AcademicSvc, "AcademicSvc"),
		vala.IsNotNil(deps.AttendanceSvc, "AttendanceSvc"),
		vala.IsNotNil(deps.NotificationSvc, "NotificationSvc"),
		vala.IsNotNil(deps.Hub, "Hub"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
	).CheckAndPanic()

	s := &Server{
		app:      echo.New(),
		deps:     deps,
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

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	g := s.app.Group("/api")
	jwt := jwtMiddleware(s.deps.Issuer)

	g.GET("/health", health)
	registerAuthAPI(g, jwt, s.deps.UserSvc, s.deps.Issuer)
	registerAttendanceAPI(g, jwt, s.deps.AttendanceSvc)
	registerEnrollmentAPI(g, jwt, s.deps.AcademicSvc)
	registerGradeAPI(g, jwt, s.deps.AcademicSvc)
	registerNotificationAPI(g, jwt, s.deps.NotificationSvc, s.deps.Hub, s.deps.Issuer)
}

// Start blocks until the server stops; failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok", "timestamp": core.NowFunc()})
}
