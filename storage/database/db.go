package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/abiboard/core"
	appfs "github.com/trezcool/abiboard/fs"
)

const migrationsDir = "migrations"

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sqlx.Open(conf.Database.Engine, u.String())
}

// Open connects to the application database and waits for it to be ready.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	var exists bool
	if err := db.Get(&exists, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", conf.Database.User); err != nil {
		return errors.Wrap(err, "checking app user")
	}

	if !exists {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err := db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	var exists bool
	if err := db.Get(&exists, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name); err != nil {
		return errors.Wrap(err, "checking DB")
	}

	if !exists {
		if _, err := db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the application user and database.
func CreateIfNotExist(conf *core.Config) error {
	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

// gooseLogger routes goose output to the application logger.
type gooseLogger struct {
	logger core.Logger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.logger.Fatal(fmt.Sprintf(format, v...)) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.logger.Info(fmt.Sprintf(format, v...)) }

// PrepareMigrations points goose at the embedded migrations.
func PrepareMigrations(logger core.Logger) error {
	goose.SetBaseFS(appfs.FS)
	if logger != nil {
		goose.SetLogger(gooseLogger{logger: logger})
	}
	return errors.Wrap(goose.SetDialect("postgres"), "setting goose dialect")
}

// Migrate runs a goose command (up, down, status, ...) on the embedded migrations.
func Migrate(ctx context.Context, db *sqlx.DB, logger core.Logger, command string, args ...string) error {
	if err := PrepareMigrations(logger); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db.DB, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migrations %s", command)
	}
	return nil
}
