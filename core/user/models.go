package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/abiboard/core"
)

// Roles
const (
	RoleStudent = "STUDENT"
	RoleAdmin   = "ADMIN"
)

var (
	AllRoles = []string{RoleAdmin, RoleStudent}

	Roles = []Role{
		{Name: "Schüler:in", Value: RoleStudent},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u *User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsStudent() bool {
	return u.Role == RoleStudent
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Role            string `json:"role" validate:"omitempty,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if nu.Role == "" {
		nu.Role = RoleStudent
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Username        string `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	IsActive        *bool  `json:"is_active"`
	Role            string `json:"role" validate:"omitempty,role"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc ServiceInterface) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if uu.Role == "" {
		uu.Role = origUsr.Role
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single User; the first non-empty criterion wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
