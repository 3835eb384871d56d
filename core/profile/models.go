package profile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/abiboard/core"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
)

type Profile struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Status      Status     `json:"status"`
	Nickname    *string    `json:"nickname"` // legacy, superseded by field values
	Motto       *string    `json:"motto"`    // legacy, superseded by field values
	SubmittedAt *time.Time `json:"submitted_at"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

func (p Profile) IsDraft() bool     { return p.Status == StatusDraft }
func (p Profile) IsSubmitted() bool { return p.Status == StatusSubmitted }

// FieldValue is the stored value of one field of one profile.
type FieldValue struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	FieldID   string    `json:"field_id"`
	Value     Value     `json:"value"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// View is a profile as rendered to its owner: values of active fields keyed by field key.
type View struct {
	Profile
	Values map[string]Value `json:"values"`
}

// Draft is the payload of a draft save.
// Values holds the raw JSON value per field key; Uploads the new image files per field key.
type Draft struct {
	Nickname *string                    `json:"nickname" validate:"omitempty,max=100"`
	Motto    *string                    `json:"motto" validate:"omitempty,max=500"`
	Values   map[string]json.RawMessage `json:"values"`
	Uploads  map[string][]core.Upload   `json:"-"`
}

func (d *Draft) Validate(validate *validator.Validate) error {
	if d.Nickname != nil {
		nickname := core.CleanString(*d.Nickname)
		d.Nickname = &nickname
	}
	if d.Motto != nil {
		motto := core.CleanString(*d.Motto)
		d.Motto = &motto
	}
	return validate.Struct(d)
}

type Repository interface {
	CreateProfile(ctx context.Context, prof Profile, exec ...core.DBExecutor) (Profile, error)
	GetProfileByUserID(ctx context.Context, userID string, exec ...core.DBExecutor) (Profile, error)
	QueryProfiles(ctx context.Context, exec ...core.DBExecutor) ([]Profile, error)
	UpdateProfile(ctx context.Context, prof Profile, exec ...core.DBExecutor) (Profile, error)

	// QueryValues returns the values of a profile, inactive fields included.
	QueryValues(ctx context.Context, profileID string, exec ...core.DBExecutor) ([]FieldValue, error)
	// QueryAllValues returns every stored value of every profile.
	QueryAllValues(ctx context.Context, exec ...core.DBExecutor) ([]FieldValue, error)
	// UpsertValue inserts or replaces the value of (ProfileID, FieldID).
	UpsertValue(ctx context.Context, val FieldValue, exec ...core.DBExecutor) (FieldValue, error)
}
