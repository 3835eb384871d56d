package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
)

type fieldRepository struct {
	db *DB
}

var _ field.Repository = (*fieldRepository)(nil)

func NewFieldRepository(db *DB) *fieldRepository {
	return &fieldRepository{db: db}
}

func (repo *fieldRepository) CreateField(ctx context.Context, fld field.Field, exec ...core.DBExecutor) (field.Field, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, f := range repo.db.data.fields {
		if f.Key == fld.Key {
			return field.Field{}, field.ErrKeyExists
		}
	}
	fld.ID = newID()
	repo.db.data.fields[fld.ID] = fld
	return fld, nil
}

func (repo *fieldRepository) QueryFields(ctx context.Context, filter field.QueryFilter, exec ...core.DBExecutor) ([]field.Field, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	flds := make([]field.Field, 0, len(repo.db.data.fields))
	for _, fld := range repo.db.data.fields {
		if filter.ActiveOnly && !fld.Active {
			continue
		}
		if len(filter.Types) > 0 && !hasType(filter.Types, fld.Type) {
			continue
		}
		flds = append(flds, fld)
	}
	sort.Slice(flds, func(i, j int) bool {
		if flds[i].Order != flds[j].Order {
			return flds[i].Order < flds[j].Order
		}
		if !flds[i].CreatedAt.Equal(flds[j].CreatedAt) {
			return flds[i].CreatedAt.Before(flds[j].CreatedAt)
		}
		return flds[i].ID < flds[j].ID
	})
	return flds, nil
}

func (repo *fieldRepository) GetField(ctx context.Context, id string, exec ...core.DBExecutor) (field.Field, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if fld, ok := repo.db.data.fields[id]; ok {
		return fld, nil
	}
	return field.Field{}, field.ErrNotFound
}

func (repo *fieldRepository) GetFieldByKey(ctx context.Context, key string, exec ...core.DBExecutor) (field.Field, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, fld := range repo.db.data.fields {
		if fld.Key == key {
			return fld, nil
		}
	}
	return field.Field{}, field.ErrNotFound
}

func (repo *fieldRepository) UpdateField(ctx context.Context, fld field.Field, exec ...core.DBExecutor) (field.Field, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.data.fields[fld.ID]
	if !ok {
		return field.Field{}, field.ErrNotFound
	}
	// key and type are immutable
	fld.Key = orig.Key
	fld.Type = orig.Type
	fld.CreatedAt = orig.CreatedAt
	repo.db.data.fields[fld.ID] = fld
	return fld, nil
}

func (repo *fieldRepository) SetFieldOrder(ctx context.Context, id string, order int, updatedAt time.Time, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	fld, ok := repo.db.data.fields[id]
	if !ok {
		return field.ErrNotFound
	}
	fld.Order = order
	fld.UpdatedAt = updatedAt.UTC()
	repo.db.data.fields[id] = fld
	return nil
}

func hasType(types []field.Type, t field.Type) bool {
	for _, typ := range types {
		if typ == t {
			return true
		}
	}
	return false
}
