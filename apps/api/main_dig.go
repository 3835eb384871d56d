package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/abiboard/apps/api/di/dig"
	echoapi "github.com/trezcool/abiboard/apps/api/echo"
	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/setting"
	"github.com/trezcool/abiboard/core/user"
	logsvc "github.com/trezcool/abiboard/services/logger"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		validate *validator.Validate,
		translator ut.Translator,
		settingSvc *setting.Service,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		if l, ok := apiLogger.(*logsvc.RollbarLogger); ok {
			defer func() { _ = l.Sync() }()
		}

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)
		field.InitValidators(validate, translator)

		core.ParseEmailTemplates(apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		if err := settingSvc.Seed(context.Background(), conf); err != nil {
			apiLogger.Fatal(fmt.Sprintf("seeding settings: %v", err), err)
		}

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}
