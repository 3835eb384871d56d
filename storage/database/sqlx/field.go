package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
)

const fieldColumns = `id, key, type, label, placeholder, max_length, max_files, rows, required, sort_order, active, created_at, updated_at`

type fieldRow struct {
	ID          string      `db:"id"`
	Key         string      `db:"key"`
	Type        string      `db:"type"`
	Label       string      `db:"label"`
	Placeholder null.String `db:"placeholder"`
	MaxLength   null.Int    `db:"max_length"`
	MaxFiles    null.Int    `db:"max_files"`
	Rows        null.Int    `db:"rows"`
	Required    bool        `db:"required"`
	SortOrder   int         `db:"sort_order"`
	Active      bool        `db:"active"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type fieldRepository struct {
	base
}

var _ field.Repository = (*fieldRepository)(nil)

func NewFieldRepository(exec core.DBExecutor) *fieldRepository {
	return &fieldRepository{base{exec: exec}}
}

func (repo fieldRepository) toRow(fld field.Field) fieldRow {
	return fieldRow{
		ID:          fld.ID,
		Key:         fld.Key,
		Type:        string(fld.Type),
		Label:       fld.Label,
		Placeholder: null.StringFromPtr(fld.Placeholder),
		MaxLength:   null.IntFromPtr(fld.MaxLength),
		MaxFiles:    null.IntFromPtr(fld.MaxFiles),
		Rows:        null.IntFromPtr(fld.Rows),
		Required:    fld.Required,
		SortOrder:   fld.Order,
		Active:      fld.Active,
		CreatedAt:   fld.CreatedAt.UTC(),
		UpdatedAt:   fld.UpdatedAt.UTC(),
	}
}

func (repo fieldRepository) fromRow(row fieldRow) field.Field {
	return field.Field{
		ID:          row.ID,
		Key:         row.Key,
		Type:        field.Type(row.Type),
		Label:       row.Label,
		Placeholder: row.Placeholder.Ptr(),
		MaxLength:   row.MaxLength.Ptr(),
		MaxFiles:    row.MaxFiles.Ptr(),
		Rows:        row.Rows.Ptr(),
		Required:    row.Required,
		Order:       row.SortOrder,
		Active:      row.Active,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo fieldRepository) CreateField(ctx context.Context, fld field.Field, exec ...core.DBExecutor) (field.Field, error) {
	fld.ID = uuid.New().String()
	row := repo.toRow(fld)
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO profile_field (` + fieldColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		row.ID, row.Key, row.Type, row.Label, row.Placeholder, row.MaxLength, row.MaxFiles, row.Rows,
		row.Required, row.SortOrder, row.Active, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return field.Field{}, field.ErrKeyExists
		}
		return field.Field{}, errors.Wrap(err, "inserting field")
	}
	return repo.fromRow(row), nil
}

func (repo fieldRepository) QueryFields(ctx context.Context, filter field.QueryFilter, exec ...core.DBExecutor) ([]field.Field, error) {
	where := new(whereClause)
	if filter.ActiveOnly {
		where.add("active = ?", true)
	}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		where.add("type IN (?)", types)
	}

	q, args, err := sqlx.In(`SELECT `+fieldColumns+` FROM profile_field`+where.String()+` ORDER BY sort_order ASC, created_at ASC`, where.args...)
	if err != nil {
		return nil, errors.Wrap(err, "building fields query")
	}
	exe := repo.getExec(exec)
	var rows []fieldRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying fields")
	}
	flds := make([]field.Field, 0, len(rows))
	for _, row := range rows {
		flds = append(flds, repo.fromRow(row))
	}
	return flds, nil
}

func (repo fieldRepository) getBy(ctx context.Context, cond string, arg interface{}, exec []core.DBExecutor) (field.Field, error) {
	exe := repo.getExec(exec)
	var row fieldRow
	if err := exe.GetContext(ctx, &row, exe.Rebind(`SELECT `+fieldColumns+` FROM profile_field WHERE `+cond), arg); err != nil {
		return field.Field{}, trapNoRowsErr(err, field.ErrNotFound, "finding field")
	}
	return repo.fromRow(row), nil
}

func (repo fieldRepository) GetField(ctx context.Context, id string, exec ...core.DBExecutor) (field.Field, error) {
	if !validUUID(id) {
		return field.Field{}, field.ErrNotFound
	}
	return repo.getBy(ctx, "id = ?", id, exec)
}

func (repo fieldRepository) GetFieldByKey(ctx context.Context, key string, exec ...core.DBExecutor) (field.Field, error) {
	return repo.getBy(ctx, "key = ?", key, exec)
}

func (repo fieldRepository) UpdateField(ctx context.Context, fld field.Field, exec ...core.DBExecutor) (field.Field, error) {
	if !validUUID(fld.ID) {
		return field.Field{}, field.ErrNotFound
	}
	row := repo.toRow(fld)
	exe := repo.getExec(exec)
	// key and type are immutable
	q := exe.Rebind(`UPDATE profile_field SET label = ?, placeholder = ?, max_length = ?, max_files = ?, rows = ?,
		required = ?, sort_order = ?, active = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		row.Label, row.Placeholder, row.MaxLength, row.MaxFiles, row.Rows,
		row.Required, row.SortOrder, row.Active, row.UpdatedAt, row.ID)
	if err != nil {
		return field.Field{}, errors.Wrap(err, "updating field")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return field.Field{}, field.ErrNotFound
	}
	return repo.GetField(ctx, fld.ID, exe)
}

func (repo fieldRepository) SetFieldOrder(ctx context.Context, id string, order int, updatedAt time.Time, exec ...core.DBExecutor) error {
	if !validUUID(id) {
		return field.ErrNotFound
	}
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(`UPDATE profile_field SET sort_order = ?, updated_at = ? WHERE id = ?`),
		order, updatedAt.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating field order")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return field.ErrNotFound
	}
	return nil
}
