package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

const uniqueViolation = "23505"

// TxRunner runs functions inside database transactions.
type TxRunner struct {
	db *sqlx.DB
}

var _ core.TxRunner = (*TxRunner)(nil)

func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// base holds the default executor of a repository.
type base struct {
	exec core.DBExecutor
}

func (b base) getExec(exec []core.DBExecutor) core.DBExecutor {
	return core.GetExec(b.exec, exec)
}

// trapNoRowsErr maps "no rows" to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// uniqueConstraint returns the violated constraint if err is a unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validUUIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validUUID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

// whereClause accumulates AND-ed conditions and their arguments.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// orderBy renders the orderings whose field is in allowed, or def.
func orderBy(ordering []core.DBOrdering, allowed map[string]bool, def string) string {
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if allowed[ord.Field] {
			parts = append(parts, ord.String())
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf(" ORDER BY %s", def)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
