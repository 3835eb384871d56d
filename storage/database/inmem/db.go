package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
	"github.com/trezcool/abiboard/core/profile"
	"github.com/trezcool/abiboard/core/user"
)

type (
	// DB is an in-memory database, used in development and tests.
	DB struct {
		mu   sync.RWMutex
		txMu sync.Mutex
		data tables
	}

	tables struct {
		users      map[string]user.User
		fields     map[string]field.Field
		profiles   map[string]profile.Profile
		values     map[valueKey]profile.FieldValue
		settings   map[string]string
		activities []core.Activity
	}

	valueKey struct {
		profileID string
		fieldID   string
	}
)

var _ core.TxRunner = (*DB)(nil)

func Open() *DB {
	return &DB{data: tables{
		users:    make(map[string]user.User),
		fields:   make(map[string]field.Field),
		profiles: make(map[string]profile.Profile),
		values:   make(map[valueKey]profile.FieldValue),
		settings: make(map[string]string),
	}}
}

func (t tables) clone() tables {
	c := tables{
		users:      make(map[string]user.User, len(t.users)),
		fields:     make(map[string]field.Field, len(t.fields)),
		profiles:   make(map[string]profile.Profile, len(t.profiles)),
		values:     make(map[valueKey]profile.FieldValue, len(t.values)),
		settings:   make(map[string]string, len(t.settings)),
		activities: append([]core.Activity(nil), t.activities...),
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.fields {
		c.fields[k] = v
	}
	for k, v := range t.profiles {
		c.profiles[k] = v
	}
	for k, v := range t.values {
		c.values[k] = v
	}
	for k, v := range t.settings {
		c.settings[k] = v
	}
	return c
}

// RunInTx runs fn on the shared tables; if fn fails, the tables are restored to their state before fn.
// Transactions are serialized. exec is always nil: the in-memory repositories ignore it.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.data.clone()
	db.mu.RUnlock()

	if err := fn(nil); err != nil {
		db.mu.Lock()
		db.data = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

// Activities returns the recorded activity log.
func (db *DB) Activities() []core.Activity {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]core.Activity(nil), db.data.activities...)
}

func (db *DB) RecordActivity(ctx context.Context, act core.Activity) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if act.ID == "" {
		act.ID = newID()
	}
	db.data.activities = append(db.data.activities, act)
	return nil
}
