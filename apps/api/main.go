package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/trezcool/chuo/apps/api/echo"
	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/academic"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/notification"
	"github.com/trezcool/chuo/core/user"
	emailsvc "github.com/trezcool/chuo/services/email"
	livesvc "github.com/trezcool/chuo/services/live"
	logsvc "github.com/trezcool/chuo/services/logger"
	metricsvc "github.com/trezcool/chuo/services/metrics"
	"github.com/trezcool/chuo/storage/database"
	sqlxrepos "github.com/trezcool/chuo/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up DB
	db, err := setUpDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	usrRepo := sqlxrepos.NewUserRepository(db)
	acadRepo := sqlxrepos.NewAcademicRepository(db)
	attRepo := sqlxrepos.NewAttendanceRepository(db)
	notifRepo := sqlxrepos.NewNotificationRepository(db)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger)

	user.LoadCommonPasswords(conf, logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(usrRepo, validate)

	hub := livesvc.NewHub(logger)
	go hub.Run(ctx)

	dispatcher, err := newDispatcher(ctx, conf, logger, notifRepo, hub, mailSvc, usrSvc)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up notifications: %v", err), err)
	}
	logger.Info(fmt.Sprintf("Notification sinks : %v", dispatcher.SinkNames()))

	acadSvc := academic.NewService(acadRepo, dispatcher, validate)
	attSvc := attendance.NewService(attRepo, acadRepo, dispatcher, validate, attendance.Config{
		CodeExpiry: conf.QRCodeExpiry(),
	})
	go attendance.Sweep(ctx, attSvc, conf.QRCode.SweepInterval, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics of the default registry.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			Issuer:          user.NewIssuer(conf),
			UserSvc:         usrSvc,
			AcademicSvc:     acadSvc,
			AttendanceSvc:   attSvc,
			NotificationSvc: notification.NewService(notifRepo),
			Hub:             hub,
			Validate:        validate,
			Translator:      translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancelShutdown()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// newDispatcher wires the notification sinks: durable first, then live, then email if enabled.
// With a redis URL, live payloads go through redis so that every instance reaches its own clients.
func newDispatcher(
	ctx context.Context,
	conf *core.Config,
	logger core.Logger,
	repo notification.Repository,
	hub *livesvc.Hub,
	mailSvc core.EmailService,
	users notification.UserFinder,
) (*notification.Dispatcher, error) {
	col, err := metricsvc.NewCollectors(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}

	var pub livesvc.Publisher = hub
	if conf.Redis.URL != "" {
		rdb, err := livesvc.OpenRedis(ctx, conf.Redis.URL)
		if err != nil {
			return nil, err
		}
		bridge := livesvc.NewRedisBridge(rdb, conf.Redis.Channel, hub, logger)
		go bridge.Run(ctx)
		pub = bridge
	}

	dispatcher := notification.NewDispatcher(logger,
		metricsvc.Instrument(notification.NewDurableSink(repo), col),
		metricsvc.Instrument(livesvc.NewSink(pub, logger), col),
	)
	if conf.Notification.Email {
		dispatcher.AddSink(metricsvc.Instrument(notification.NewEmailSink(mailSvc, users), col))
	}
	return dispatcher, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
