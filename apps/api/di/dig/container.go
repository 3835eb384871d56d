package dig_container

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/abiboard/apps/api/echo"
	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/export"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/setting"
	"github.com/trezcool/abiboard/core/user"
	emailsvc "github.com/trezcool/abiboard/services/email"
	logsvc "github.com/trezcool/abiboard/services/logger"
	mediasvc "github.com/trezcool/abiboard/services/media"
	"github.com/trezcool/abiboard/storage/database"
	sqlxrepos "github.com/trezcool/abiboard/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newZap(conf *core.Config) *zap.Logger {
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	return zl
}

func newLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	logger := logsvc.NewRollbarLogger(zl, "API", conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config, zl *zap.Logger) core.Logger {
	return logsvc.NewRollbarLogger(zl, "DB", conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db, loggerParam.Logger, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newExecutor(db *sqlx.DB) core.DBExecutor {
	return db
}

func newImageStore(conf *core.Config, logger core.Logger) core.ImageStore {
	store, err := mediasvc.NewFilesystemStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up media store: %v", err), err)
	}
	return store
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newSettingService(svc *setting.Service) setting.ServiceInterface {
	return svc
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZap))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newExecutor))
	must(c.Provide(sqlxrepos.NewTxRunner, dig.As(new(core.TxRunner))))
	must(c.Provide(sqlxrepos.NewActivityRepository, dig.As(new(core.ActivityRecorder))))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewFieldRepository, dig.As(new(field.Repository))))
	must(c.Provide(sqlxrepos.NewProfileRepository, dig.As(new(profile.Repository))))
	must(c.Provide(sqlxrepos.NewSettingRepository, dig.As(new(setting.Repository))))
	must(c.Provide(newImageStore))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(field.NewService, dig.As(new(field.ServiceInterface))))
	must(c.Provide(profile.NewService, dig.As(new(profile.ServiceInterface))))
	must(c.Provide(setting.NewService))
	must(c.Provide(newSettingService))
	must(c.Provide(export.NewService, dig.As(new(export.ServiceInterface))))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
