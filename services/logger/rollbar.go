package logsvc

import (
	"fmt"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/user"
)

// RollbarLogger reports to Rollbar and writes the same entries locally through zap.
type RollbarLogger struct {
	zl *zap.SugaredLogger
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewZap returns the local logger: human readable in DEV, JSON otherwise.
func NewZap(conf *core.Config) (*zap.Logger, error) {
	if conf.Env == "DEV" || conf.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func NewRollbarLogger(zl *zap.Logger, name string, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{zl: zl.Named(name).Sugar()}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

func (l RollbarLogger) Sync() error {
	return l.zl.Sync()
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, []interface{}) {
	var usrSet bool
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	kvs := make([]interface{}, 0, 2*len(args))
	for i, arg := range args {
		switch a := arg.(type) {
		case user.User:
			// only set one User
			if !usrSet {
				rollbar.SetPerson(a.ID, a.Username, a.Email)
				kvs = append(kvs, "user_id", a.ID)
				usrSet = true
			}
		case error:
			rbArgs = append(rbArgs, a)
			kvs = append(kvs, "error", fmt.Sprintf("%+v", a))
		case map[string]interface{}:
			rbArgs = append(rbArgs, a)
			kvs = append(kvs, "data", a)
		default:
			rbArgs = append(rbArgs, a)
			kvs = append(kvs, fmt.Sprintf("arg%d", i), a)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return rbArgs, kvs
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.zl.Debugw(msg, kvs...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.zl.Infow(msg, kvs...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.zl.Warnw(msg, kvs...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.zl.Errorw(msg, kvs...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, kvs := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	l.zl.Fatalw(msg, kvs...)
}
