package profile

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core/field"
)

// Value is the payload of a FieldValue. It is one of Text, SingleImage or MultiImage,
// matching the type of the field the value belongs to.
type Value interface {
	// Empty reports whether the value counts as missing for a required field.
	Empty() bool
	// Refs returns the stored image references held by the value.
	Refs() []string
	isValue()
}

// Text is the value of TEXT and TEXTAREA fields.
type Text struct {
	Text string
}

// SingleImage is the value of SINGLE_IMAGE fields. An empty Ref means no image.
type SingleImage struct {
	Ref string
}

// MultiImage is the value of MULTI_IMAGE fields, in display order.
type MultiImage struct {
	Images []string
}

func (Text) isValue()        {}
func (SingleImage) isValue() {}
func (MultiImage) isValue()  {}

func (v Text) Empty() bool        { return strings.TrimSpace(v.Text) == "" }
func (v SingleImage) Empty() bool { return v.Ref == "" }
func (v MultiImage) Empty() bool  { return len(v.Images) == 0 }

func (Text) Refs() []string { return nil }

func (v SingleImage) Refs() []string {
	if v.Ref == "" {
		return nil
	}
	return []string{v.Ref}
}

func (v MultiImage) Refs() []string { return v.Images }

func (v Text) MarshalJSON() ([]byte, error) { return json.Marshal(v.Text) }

func (v SingleImage) MarshalJSON() ([]byte, error) {
	if v.Ref == "" {
		return []byte("null"), nil
	}
	return json.Marshal(v.Ref)
}

func (v MultiImage) MarshalJSON() ([]byte, error) {
	if v.Images == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Images)
}

// EmptyValue returns the empty value matching t, or nil for unknown types.
func EmptyValue(t field.Type) Value {
	switch t {
	case field.TypeText, field.TypeTextarea:
		return Text{}
	case field.TypeSingleImage:
		return SingleImage{}
	case field.TypeMultiImage:
		return MultiImage{}
	}
	return nil
}

// Columns is the storage form of a Value: one column per variant, at most one of them in use.
type Columns struct {
	Text   *string
	Image  *string
	Images []string
}

// EncodeValue maps v onto its storage columns.
func EncodeValue(v Value) Columns {
	switch val := v.(type) {
	case Text:
		if val.Text == "" {
			return Columns{}
		}
		text := val.Text
		return Columns{Text: &text}
	case SingleImage:
		if val.Ref == "" {
			return Columns{}
		}
		ref := val.Ref
		return Columns{Image: &ref}
	case MultiImage:
		return Columns{Images: append([]string(nil), val.Images...)}
	}
	return Columns{}
}

// DecodeValue reads the column matching t, ignoring the others.
func DecodeValue(t field.Type, cols Columns) (Value, error) {
	switch t {
	case field.TypeText, field.TypeTextarea:
		if cols.Text == nil {
			return Text{}, nil
		}
		return Text{Text: *cols.Text}, nil
	case field.TypeSingleImage:
		if cols.Image == nil {
			return SingleImage{}, nil
		}
		return SingleImage{Ref: *cols.Image}, nil
	case field.TypeMultiImage:
		if len(cols.Images) == 0 {
			return MultiImage{}, nil
		}
		return MultiImage{Images: append([]string(nil), cols.Images...)}, nil
	}
	return nil, errors.Errorf("unknown field type %q", t)
}
