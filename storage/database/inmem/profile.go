package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/setting"
)

type profileRepository struct {
	db *DB
}

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *DB) *profileRepository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) CreateProfile(ctx context.Context, prof profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, p := range repo.db.data.profiles {
		if p.UserID == prof.UserID {
			return profile.Profile{}, core.NewConflictError("user_id", "Profil existiert bereits.")
		}
	}
	prof.ID = newID()
	repo.db.data.profiles[prof.ID] = prof
	return prof, nil
}

func (repo *profileRepository) GetProfileByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (profile.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, prof := range repo.db.data.profiles {
		if prof.UserID == userID {
			return prof, nil
		}
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) QueryProfiles(ctx context.Context, exec ...core.DBExecutor) ([]profile.Profile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	profs := make([]profile.Profile, 0, len(repo.db.data.profiles))
	for _, prof := range repo.db.data.profiles {
		profs = append(profs, prof)
	}
	sort.Slice(profs, func(i, j int) bool { return profs[i].CreatedAt.Before(profs[j].CreatedAt) })
	return profs, nil
}

func (repo *profileRepository) UpdateProfile(ctx context.Context, prof profile.Profile, exec ...core.DBExecutor) (profile.Profile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.data.profiles[prof.ID]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	prof.UserID = orig.UserID
	prof.CreatedAt = orig.CreatedAt
	repo.db.data.profiles[prof.ID] = prof
	return prof, nil
}

func (repo *profileRepository) QueryValues(ctx context.Context, profileID string, exec ...core.DBExecutor) ([]profile.FieldValue, error) {
	return repo.queryValues(func(k valueKey) bool { return k.profileID == profileID }), nil
}

func (repo *profileRepository) QueryAllValues(ctx context.Context, exec ...core.DBExecutor) ([]profile.FieldValue, error) {
	return repo.queryValues(func(valueKey) bool { return true }), nil
}

func (repo *profileRepository) queryValues(match func(valueKey) bool) []profile.FieldValue {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	vals := make([]profile.FieldValue, 0)
	for k, val := range repo.db.data.values {
		if match(k) {
			vals = append(vals, val)
		}
	}
	sort.Slice(vals, func(i, j int) bool {
		if vals[i].ProfileID != vals[j].ProfileID {
			return vals[i].ProfileID < vals[j].ProfileID
		}
		return vals[i].FieldID < vals[j].FieldID
	})
	return vals
}

func (repo *profileRepository) UpsertValue(ctx context.Context, val profile.FieldValue, exec ...core.DBExecutor) (profile.FieldValue, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.data.profiles[val.ProfileID]; !ok {
		return profile.FieldValue{}, profile.ErrNotFound
	}
	k := valueKey{profileID: val.ProfileID, fieldID: val.FieldID}
	if orig, ok := repo.db.data.values[k]; ok {
		val.ID = orig.ID
		val.CreatedAt = orig.CreatedAt
	} else {
		val.ID = newID()
		val.CreatedAt = val.UpdatedAt
	}
	repo.db.data.values[k] = val
	return val, nil
}

type settingRepository struct {
	db *DB
}

var _ setting.Repository = (*settingRepository)(nil)

func NewSettingRepository(db *DB) *settingRepository {
	return &settingRepository{db: db}
}

func (repo *settingRepository) GetSetting(ctx context.Context, key string, exec ...core.DBExecutor) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if value, ok := repo.db.data.settings[key]; ok {
		return value, nil
	}
	return "", setting.ErrNotFound
}

func (repo *settingRepository) SetSetting(ctx context.Context, key, value string, updatedAt time.Time, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.data.settings[key] = value
	return nil
}
