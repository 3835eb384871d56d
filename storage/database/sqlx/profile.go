package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/profile"
)

const (
	profileColumns = `id, user_id, status, nickname, motto, submitted_at, created_at, updated_at`

	valueSelect = `SELECT v.id, v.profile_id, v.field_id, f.type AS field_type,
		v.text_value, v.image_value, v.images_value, v.created_at, v.updated_at
		FROM profile_field_value v JOIN profile_field f ON f.id = v.field_id`
)

type profileRow struct {
	ID          string      `db:"id"`
	UserID      string      `db:"user_id"`
	Status      string      `db:"status"`
	Nickname    null.String `db:"nickname"`
	Motto       null.String `db:"motto"`
	SubmittedAt null.Time   `db:"submitted_at"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type valueRow struct {
	ID          string         `db:"id"`
	ProfileID   string         `db:"profile_id"`
	FieldID     string         `db:"field_id"`
	FieldType   string         `db:"field_type"`
	TextValue   null.String    `db:"text_value"`
	ImageValue  null.String    `db:"image_value"`
	ImagesValue pq.StringArray `db:"images_value"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

type profileRepository struct {
	base
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(exec core.DBExecutor) *profileRepository {
	return &profileRepository{base{exec: exec}}
}

func (repo profileRepository) toRow(prof profile.Profile) profileRow {
	row := profileRow{
		ID:        prof.ID,
		UserID:    prof.UserID,
		Status:    string(prof.Status),
		Nickname:  null.StringFromPtr(prof.Nickname),
		Motto:     null.StringFromPtr(prof.Motto),
		CreatedAt: prof.CreatedAt.UTC(),
		UpdatedAt: prof.UpdatedAt.UTC(),
	}
	if prof.SubmittedAt != nil {
		row.SubmittedAt = null.TimeFrom(prof.SubmittedAt.UTC())
	}
	return row
}

func (repo profileRepository) fromRow(row profileRow) profile.Profile {
	prof := profile.Profile{
		ID:        row.ID,
		UserID:    row.UserID,
		Status:    profile.Status(row.Status),
		Nickname:  row.Nickname.Ptr(),
		Motto:     row.Motto.Ptr(),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.SubmittedAt.Valid {
		at := row.SubmittedAt.Time.UTC()
		prof.SubmittedAt = &at
	}
	return prof
}

func (repo profileRepository) fromValueRow(row valueRow) (profile.FieldValue, error) {
	val, err := profile.DecodeValue(field.Type(row.FieldType), profile.Columns{
		Text:   row.TextValue.Ptr(),
		Image:  row.ImageValue.Ptr(),
		Images: row.ImagesValue,
	})
	if err != nil {
		return profile.FieldValue{}, errors.Wrapf(err, "decoding value %s", row.ID)
	}
	return profile.FieldValue{
		ID:        row.ID,
		ProfileID: row.ProfileID,
		FieldID:   row.FieldID,
		Value:     val,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (repo profileRepository) CreateProfile(ctx context.Context, prof profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	prof.ID = uuid.New().String()
	row := repo.toRow(prof)
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO profile (` + profileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		row.ID, row.UserID, row.Status, row.Nickname, row.Motto, row.SubmittedAt, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return profile.Profile{}, core.NewConflictError("user_id", "Profil existiert bereits.")
		}
		return profile.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return repo.fromRow(row), nil
}

func (repo profileRepository) GetProfileByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (profile.Profile, error) {
	if !validUUID(userID) {
		return profile.Profile{}, profile.ErrNotFound
	}
	exe := repo.getExec(exec)
	var row profileRow
	err := exe.GetContext(ctx, &row, exe.Rebind(`SELECT `+profileColumns+` FROM profile WHERE user_id = ?`), userID)
	if err != nil {
		return profile.Profile{}, trapNoRowsErr(err, profile.ErrNotFound, "finding profile")
	}
	return repo.fromRow(row), nil
}

func (repo profileRepository) QueryProfiles(ctx context.Context, exec ...core.DBExecutor) ([]profile.Profile, error) {
	exe := repo.getExec(exec)
	var rows []profileRow
	if err := exe.SelectContext(ctx, &rows, `SELECT `+profileColumns+` FROM profile ORDER BY created_at ASC`); err != nil {
		return nil, errors.Wrap(err, "querying profiles")
	}
	profs := make([]profile.Profile, 0, len(rows))
	for _, row := range rows {
		profs = append(profs, repo.fromRow(row))
	}
	return profs, nil
}

func (repo profileRepository) UpdateProfile(ctx context.Context, prof profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	if !validUUID(prof.ID) {
		return profile.Profile{}, profile.ErrNotFound
	}
	row := repo.toRow(prof)
	exe := repo.getExec(exec)
	q := exe.Rebind(`UPDATE profile SET status = ?, nickname = ?, motto = ?, submitted_at = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q, row.Status, row.Nickname, row.Motto, row.SubmittedAt, row.UpdatedAt, row.ID)
	if err != nil {
		return profile.Profile{}, errors.Wrap(err, "updating profile")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return profile.Profile{}, profile.ErrNotFound
	}
	return repo.fromRow(row), nil
}

func (repo profileRepository) selectValues(ctx context.Context, exe core.DBExecutor, q string, args ...interface{}) ([]profile.FieldValue, error) {
	var rows []valueRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying field values")
	}
	vals := make([]profile.FieldValue, 0, len(rows))
	for _, row := range rows {
		val, err := repo.fromValueRow(row)
		if err != nil {
			return nil, err
		}
		vals = append(vals, val)
	}
	return vals, nil
}

func (repo profileRepository) QueryValues(ctx context.Context, profileID string, exec ...core.DBExecutor) ([]profile.FieldValue, error) {
	if !validUUID(profileID) {
		return []profile.FieldValue{}, nil
	}
	return repo.selectValues(ctx, repo.getExec(exec), valueSelect+` WHERE v.profile_id = ? ORDER BY f.sort_order ASC`, profileID)
}

func (repo profileRepository) QueryAllValues(ctx context.Context, exec ...core.DBExecutor) ([]profile.FieldValue, error) {
	return repo.selectValues(ctx, repo.getExec(exec), valueSelect+` ORDER BY v.profile_id, f.sort_order ASC`)
}

func (repo profileRepository) UpsertValue(ctx context.Context, val profile.FieldValue, exec ...core.DBExecutor) (profile.FieldValue, error) {
	cols := profile.EncodeValue(val.Value)
	images := pq.StringArray(cols.Images)
	if images == nil {
		images = pq.StringArray{} // column is NOT NULL
	}

	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO profile_field_value
		(id, profile_id, field_id, text_value, image_value, images_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (profile_id, field_id) DO UPDATE SET
			text_value = EXCLUDED.text_value,
			image_value = EXCLUDED.image_value,
			images_value = EXCLUDED.images_value,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`)

	var ret struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := exe.GetContext(ctx, &ret, q,
		uuid.New().String(), val.ProfileID, val.FieldID,
		null.StringFromPtr(cols.Text), null.StringFromPtr(cols.Image), images,
		val.UpdatedAt.UTC(), val.UpdatedAt.UTC())
	if err != nil {
		return profile.FieldValue{}, errors.Wrap(err, "upserting field value")
	}
	val.ID = ret.ID
	val.CreatedAt = ret.CreatedAt.UTC()
	return val, nil
}
