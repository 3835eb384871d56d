package core

import (
	"context"
	"database/sql"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		Rebind(query string) string
	}

	// TxRunner runs fn inside a single transaction: every write made through exec is
	// committed together, or none is when fn returns an error.
	TxRunner interface {
		RunInTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// GetExec returns the first executor of a variadic repository argument, or def.
func GetExec(def DBExecutor, exec []DBExecutor) DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return def
}
