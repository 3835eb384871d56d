package field

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/abiboard/core"
)

// Type is the closed set of profile field types.
type Type string

const (
	TypeText        Type = "TEXT"
	TypeTextarea    Type = "TEXTAREA"
	TypeSingleImage Type = "SINGLE_IMAGE"
	TypeMultiImage  Type = "MULTI_IMAGE"
)

// DefaultMaxFiles caps MULTI_IMAGE fields that have no MaxFiles set.
const DefaultMaxFiles = 3

var AllTypes = []Type{TypeText, TypeTextarea, TypeSingleImage, TypeMultiImage}

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeTextarea, TypeSingleImage, TypeMultiImage:
		return true
	}
	return false
}

func (t Type) IsText() bool  { return t == TypeText || t == TypeTextarea }
func (t Type) IsImage() bool { return t == TypeSingleImage || t == TypeMultiImage }

// Field is the admin-managed definition of one dynamic profile field.
type Field struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Type        Type      `json:"type"`
	Label       string    `json:"label"`
	Placeholder *string   `json:"placeholder"`
	MaxLength   *int      `json:"max_length"`
	MaxFiles    *int      `json:"max_files"`
	Rows        *int      `json:"rows"`
	Required    bool      `json:"required"`
	Order       int       `json:"order"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// FileLimit is the maximum number of images a MULTI_IMAGE field holds.
func (f Field) FileLimit() int {
	if f.MaxFiles != nil && *f.MaxFiles > 0 {
		return *f.MaxFiles
	}
	return DefaultMaxFiles
}

// NewField contains information needed to create a new Field.
type NewField struct {
	Key         string  `json:"key" validate:"required,fieldkey"`
	Type        Type    `json:"type" validate:"required,fieldtype"`
	Label       string  `json:"label" validate:"notblank,max=200"`
	Placeholder *string `json:"placeholder" validate:"omitempty,max=200"`
	MaxLength   *int    `json:"max_length" validate:"omitempty,min=1"`
	MaxFiles    *int    `json:"max_files" validate:"omitempty,min=1,max=20"`
	Rows        *int    `json:"rows" validate:"omitempty,min=1,max=50"`
	Required    bool    `json:"required"`
	Order       *int    `json:"order"`
	Active      *bool   `json:"active"`
}

func (nf *NewField) Validate(validate *validator.Validate) error {
	nf.Key = core.CleanString(nf.Key)
	nf.Label = core.CleanString(nf.Label)
	nf.Type = Type(core.CleanString(string(nf.Type)))
	nf.Placeholder = cleanOptional(nf.Placeholder)
	return validate.Struct(nf)
}

// UpdateField defines what information may be provided to modify an existing Field.
// Key and Type are accepted only to be rejected: both are immutable.
type UpdateField struct {
	Key         *string `json:"key"`
	Type        *Type   `json:"type"`
	Label       *string `json:"label" validate:"omitempty,notblank,max=200"`
	Placeholder *string `json:"placeholder" validate:"omitempty,max=200"`
	MaxLength   *int    `json:"max_length" validate:"omitempty,min=0"`
	MaxFiles    *int    `json:"max_files" validate:"omitempty,min=0,max=20"`
	Rows        *int    `json:"rows" validate:"omitempty,min=0,max=50"`
	Required    *bool   `json:"required"`
	Order       *int    `json:"order"`
	Active      *bool   `json:"active"`
}

func (uf *UpdateField) Validate(origFld Field, validate *validator.Validate) error {
	if uf.Key != nil && *uf.Key != origFld.Key {
		return core.NewFieldValidationError("key", errKeyImmutable.Error())
	}
	if uf.Type != nil && *uf.Type != origFld.Type {
		return core.NewFieldValidationError("type", errTypeImmutable.Error())
	}
	if uf.Label != nil {
		label := core.CleanString(*uf.Label)
		uf.Label = &label
	}
	return validate.Struct(uf)
}

// Apply copies the set attributes onto fld.
// An empty placeholder or a zero limit clears the attribute.
func (uf UpdateField) Apply(fld *Field) {
	if uf.Label != nil {
		fld.Label = *uf.Label
	}
	if uf.Placeholder != nil {
		fld.Placeholder = cleanOptional(uf.Placeholder)
	}
	if uf.MaxLength != nil {
		fld.MaxLength = positiveOrNil(*uf.MaxLength)
	}
	if uf.MaxFiles != nil {
		fld.MaxFiles = positiveOrNil(*uf.MaxFiles)
	}
	if uf.Rows != nil {
		fld.Rows = positiveOrNil(*uf.Rows)
	}
	if uf.Required != nil {
		fld.Required = *uf.Required
	}
	if uf.Order != nil {
		fld.Order = *uf.Order
	}
	if uf.Active != nil {
		fld.Active = *uf.Active
	}
}

// ReorderItem moves one field to Order.
type ReorderItem struct {
	ID    string `json:"id" validate:"required"`
	Order int    `json:"order"`
}

type Reorder struct {
	Items []ReorderItem `json:"items" validate:"required,min=1,dive"`
}

func (ro *Reorder) Validate(validate *validator.Validate) error {
	if err := validate.Struct(ro); err != nil {
		return err
	}
	seen := make(map[string]bool, len(ro.Items))
	for _, item := range ro.Items {
		if seen[item.ID] {
			return core.NewFieldValidationError("items", errDuplicateReorder.Error())
		}
		seen[item.ID] = true
	}
	return nil
}

type QueryFilter struct {
	ActiveOnly bool
	Types      []Type
}

func cleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	return core.StringPtr(core.CleanString(*s))
}

func positiveOrNil(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

// Repository is the persistence contract of the field registry.
type Repository interface {
	CreateField(ctx context.Context, fld Field, exec ...core.DBExecutor) (Field, error)
	// QueryFields returns the fields ordered by Order, then CreatedAt.
	QueryFields(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Field, error)
	GetField(ctx context.Context, id string, exec ...core.DBExecutor) (Field, error)
	GetFieldByKey(ctx context.Context, key string, exec ...core.DBExecutor) (Field, error)
	UpdateField(ctx context.Context, fld Field, exec ...core.DBExecutor) (Field, error)
	SetFieldOrder(ctx context.Context, id string, order int, updatedAt time.Time, exec ...core.DBExecutor) error
}
