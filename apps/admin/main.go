package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/setting"
	"github.com/trezcool/abiboard/core/user"
	emailsvc "github.com/trezcool/abiboard/services/email"
	logsvc "github.com/trezcool/abiboard/services/logger"
	"github.com/trezcool/abiboard/storage/database"
	sqlxrepos "github.com/trezcool/abiboard/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	rl := logsvc.NewRollbarLogger(zl, "ADMIN", conf)
	rl.Enable(false)
	logger = rl

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(logger)

	txRunner := sqlxrepos.NewTxRunner(db)
	activity := sqlxrepos.NewActivityRepository(db)
	usrRepo := sqlxrepos.NewUserRepository(db)

	// start CLI
	cli := commandLine{
		db:         db,
		logger:     logger,
		validate:   validate,
		translator: translator,
		usrSvc:     user.NewService(conf, usrRepo, txRunner, emailsvc.NewConsoleService(conf, logger), activity, logger),
		settingSvc: setting.NewService(sqlxrepos.NewSettingRepository(db), activity, logger),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", describe(err))
		}
		_ = rl.Sync()
		db.Close()
		os.Exit(1)
	}
	_ = rl.Sync()
}

// describe renders validation errors field by field.
func describe(err error) string {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) && len(vErr.Fields) > 0 {
		msg := ""
		for _, fe := range vErr.Fields {
			msg += fmt.Sprintf("\n  %s: %s", fe.Field, fe.Error)
		}
		return msg
	}
	return err.Error()
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
