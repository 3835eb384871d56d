package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/user"
)

const userColumns = `id, name, username, email, role, is_active, password_hash, created_at, updated_at, last_login`

var userOrderings = map[string]bool{
	"name": true, "username": true, "email": true, "role": true, "is_active": true,
	"created_at": true, "updated_at": true, "last_login": true,
}

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	Role         string      `db:"role"`
	IsActive     bool        `db:"is_active"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{base{exec: exec}}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		Role:         usr.Role,
		IsActive:     usr.Active(),
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Role:         row.Role,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	usr.SetActive(row.IsActive)
	return usr
}

func (repo userRepository) mapConflict(err error, msg string) error {
	if constraint, ok := uniqueConstraint(err); ok {
		if strings.Contains(constraint, "email") {
			return user.ErrEmailExists
		}
		return user.ErrUsernameExists
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	if username == "" && email == "" {
		return nil
	}

	where := new(whereClause)
	where.add("((username = ? AND ? <> '') OR (email = ? AND ? <> ''))", username, username, email, email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		where.add("id NOT IN (?)", validUUIDs(append(ids, uuid.Nil.String())))
	}

	q, args, err := sqlx.In(`SELECT `+userColumns+` FROM "user"`+where.String(), where.args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}
	exe := repo.getExec(exec)
	var rows []userRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		if username != "" && row.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.toRow(usr)
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO "user" (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		row.ID, row.Name, row.Username, row.Email, row.Role, row.IsActive, row.PasswordHash,
		row.CreatedAt, row.UpdatedAt, row.LastLogin)
	if err != nil {
		return user.User{}, repo.mapConflict(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	where := new(whereClause)
	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
		}
		if len(filter.Roles) > 0 {
			where.add("role IN (?)", filter.Roles)
		}
		if filter.IsActive != nil {
			where.add("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			where.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	q := `SELECT ` + userColumns + ` FROM "user"` + where.String() + orderBy(ordering, userOrderings, "created_at ASC")
	q, args, err := sqlx.In(q, where.args...)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}

	exe := repo.getExec(exec)
	var rows []userRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		cond string
		args []interface{}
	)
	switch {
	case filter.ID != "":
		if !validUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		cond, args = "id = ?", []interface{}{filter.ID}
	case filter.Username != "":
		cond, args = "username = ?", []interface{}{filter.Username}
	case filter.Email != "":
		cond, args = "email = ?", []interface{}{filter.Email}
	case filter.UsernameOrEmail != "":
		cond, args = "(username = ? OR email = ?)", []interface{}{filter.UsernameOrEmail, filter.UsernameOrEmail}
	default:
		return user.User{}, user.ErrNotFound
	}

	exe := repo.getExec(exec)
	var row userRow
	err := exe.GetContext(ctx, &row, exe.Rebind(`SELECT `+userColumns+` FROM "user" WHERE `+cond+` LIMIT 1`), args...)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if !validUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	row := repo.toRow(usr)
	exe := repo.getExec(exec)
	q := exe.Rebind(`UPDATE "user" SET name = ?, username = ?, email = ?, role = ?, is_active = ?, password_hash = ?,
		updated_at = ?, last_login = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		row.Name, row.Username, row.Email, row.Role, row.IsActive, row.PasswordHash,
		row.UpdatedAt, row.LastLogin, row.ID)
	if err != nil {
		return user.User{}, repo.mapConflict(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exe)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	ids = validUUIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting deleted users")
}
