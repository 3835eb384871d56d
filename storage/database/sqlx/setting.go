package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/setting"
)

type settingRepository struct {
	base
}

var _ setting.Repository = (*settingRepository)(nil)

func NewSettingRepository(exec core.DBExecutor) *settingRepository {
	return &settingRepository{base{exec: exec}}
}

func (repo settingRepository) GetSetting(ctx context.Context, key string, exec ...core.DBExecutor) (string, error) {
	exe := repo.getExec(exec)
	var value string
	if err := exe.GetContext(ctx, &value, exe.Rebind(`SELECT value FROM setting WHERE key = ?`), key); err != nil {
		return "", trapNoRowsErr(err, setting.ErrNotFound, "finding setting")
	}
	return value, nil
}

func (repo settingRepository) SetSetting(ctx context.Context, key, value string, updatedAt time.Time, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO setting (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`)
	_, err := exe.ExecContext(ctx, q, key, value, updatedAt.UTC())
	return errors.Wrap(err, "saving setting")
}

type activityRepository struct {
	base
}

var _ core.ActivityRecorder = (*activityRepository)(nil)

func NewActivityRepository(exec core.DBExecutor) *activityRepository {
	return &activityRepository{base{exec: exec}}
}

func (repo activityRepository) RecordActivity(ctx context.Context, act core.Activity) error {
	if act.ID == "" {
		act.ID = uuid.New().String()
	}
	q := repo.exec.Rebind(`INSERT INTO activity_log (id, user_id, action, details, created_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := repo.exec.ExecContext(ctx, q, act.ID, act.UserID, act.Action, act.Details, act.CreatedAt.UTC())
	return errors.Wrap(err, "recording activity")
}
