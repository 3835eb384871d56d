package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/user"
)

func newID() string {
	return uuid.New().String()
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.data.users))
	for _, u := range repo.db.data.users {
		users = append(users, u)
	}
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := append([]user.User(nil), excludedUsers...)
	sort.Slice(excluded, func(i, j int) bool { return excluded[i].ID < excluded[j].ID })

	for _, usr := range repo.query() {
		if isExcluded(usr, excluded) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, u := range repo.db.data.users {
		if usr.Username != "" && u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
		if usr.Email != "" && u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	usr.ID = newID()
	usr.SetActive(usr.Active())
	repo.db.data.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	users := repo.query()
	repo.db.mu.RUnlock()

	if filter != nil {
		filtered := users[:0]
		for _, usr := range users {
			if matchesFilter(usr, filter) {
				filtered = append(filtered, usr)
			}
		}
		users = filtered
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.data.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.data.users {
		switch {
		case filter.Username != "" && usr.Username == filter.Username,
			filter.Email != "" && usr.Email == filter.Email,
			filter.UsernameOrEmail != "" && (usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.data.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	for id, u := range repo.db.data.users {
		if id == usr.ID {
			continue
		}
		if usr.Username != "" && u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
		if usr.Email != "" && u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	usr.SetActive(usr.Active())
	repo.db.data.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := repo.db.data.users[id]; !ok {
			continue
		}
		delete(repo.db.data.users, id)
		deleted++

		// cascade to the profile and its values
		for pid, prof := range repo.db.data.profiles {
			if prof.UserID != id {
				continue
			}
			delete(repo.db.data.profiles, pid)
			for k := range repo.db.data.values {
				if k.profileID == pid {
					delete(repo.db.data.values, k)
				}
			}
		}
	}
	return deleted, nil
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	n := len(excludedUsers)
	if n == 0 {
		return false
	}
	idx := sort.Search(n, func(i int) bool { return excludedUsers[i].ID >= usr.ID })
	return idx < n && excludedUsers[idx].ID == usr.ID
}

func matchesFilter(usr user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) &&
			!strings.Contains(strings.ToLower(usr.Username), s) &&
			!strings.Contains(strings.ToLower(usr.Email), s) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		found := false
		for _, role := range filter.Roles {
			if usr.Role == role {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.Active() != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func compareUsers(a, b user.User, fieldName string) int {
	switch fieldName {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(a.Role, b.Role)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "last_login":
		return compareTimes(a.LastLogin, b.LastLogin)
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
