package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/trezcool/abiboard/core"
	"github.com/trezcool/abiboard/core/field"
)

// Change is the validated new state of one field of a draft.
// For image fields Value holds the kept references; Uploads are appended after them once stored.
type Change struct {
	Field   field.Field
	Value   Value
	Uploads []core.Upload
}

// input is the part of a draft addressed to one field.
type input struct {
	raw     json.RawMessage
	present bool
	uploads []core.Upload
	current Value
}

func (in input) isNull() bool {
	return bytes.Equal(bytes.TrimSpace(in.raw), []byte("null"))
}

// rule validates the input of one field. A nil *Change means the field is left as is.
type rule func(in input) (*Change, error)

type fieldRule struct {
	field field.Field
	check rule
}

// Schema is the draft validation ruleset derived from a field configuration.
type Schema struct {
	rules []fieldRule
}

// BuildSchema derives the draft ruleset from flds. Inactive fields and fields of unknown types get no rule.
// The schema never enforces required fields: that is CheckRequired's job on submit.
func BuildSchema(flds []field.Field) Schema {
	sorted := sortedFields(flds)

	var s Schema
	for _, fld := range sorted {
		if !fld.Active {
			continue
		}
		var check rule
		switch fld.Type {
		case field.TypeText, field.TypeTextarea:
			check = textRule(fld)
		case field.TypeSingleImage:
			check = singleImageRule(fld)
		case field.TypeMultiImage:
			check = multiImageRule(fld)
		default:
			continue
		}
		s.rules = append(s.rules, fieldRule{field: fld, check: check})
	}
	return s
}

// Keys returns the field keys the schema accepts, in field order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s.rules))
	for _, r := range s.rules {
		keys = append(keys, r.field.Key)
	}
	return keys
}

// Validate checks d against the schema and returns the resulting changes in field order.
// current holds the stored values by field ID. Keys without a rule are ignored.
// The first violation is returned as a *core.ValidationError.
func (s Schema) Validate(d Draft, current map[string]Value) ([]Change, error) {
	var changes []Change
	for _, r := range s.rules {
		in := input{uploads: d.Uploads[r.field.Key], current: current[r.field.ID]}
		in.raw, in.present = d.Values[r.field.Key]

		change, err := r.check(in)
		if err != nil {
			return nil, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, nil
}

func textRule(fld field.Field) rule {
	return func(in input) (*Change, error) {
		if len(in.uploads) > 0 {
			return nil, fieldErr(fld, "%s akzeptiert keine Dateien.", fld.Label)
		}
		if !in.present {
			return nil, nil
		}

		var text string
		if !in.isNull() {
			if err := json.Unmarshal(in.raw, &text); err != nil {
				return nil, fieldErr(fld, "%s muss ein Text sein.", fld.Label)
			}
		}
		if fld.MaxLength != nil && utf8.RuneCountInString(text) > *fld.MaxLength {
			return nil, fieldErr(fld, "%s darf höchstens %d Zeichen lang sein.", fld.Label, *fld.MaxLength)
		}
		return &Change{Field: fld, Value: Text{Text: text}}, nil
	}
}

func singleImageRule(fld field.Field) rule {
	return func(in input) (*Change, error) {
		if !in.present && len(in.uploads) == 0 {
			return nil, nil
		}
		if len(in.uploads) > 1 {
			return nil, fieldErr(fld, "%s: nur ein Bild erlaubt.", fld.Label)
		}

		currentRefs := refsOf(in.current)
		var kept string
		switch {
		case !in.present:
			if len(currentRefs) > 0 {
				kept = currentRefs[0]
			}
		case in.isNull():
		default:
			if err := json.Unmarshal(in.raw, &kept); err != nil {
				return nil, fieldErr(fld, "%s muss eine Bildreferenz sein.", fld.Label)
			}
			if kept != "" && !contains(currentRefs, kept) {
				return nil, fieldErr(fld, "%s: unbekanntes Bild.", fld.Label)
			}
		}

		// a new upload replaces the kept image
		if len(in.uploads) == 1 {
			kept = ""
		}
		return &Change{Field: fld, Value: SingleImage{Ref: kept}, Uploads: in.uploads}, nil
	}
}

func multiImageRule(fld field.Field) rule {
	limit := fld.FileLimit()
	return func(in input) (*Change, error) {
		if !in.present && len(in.uploads) == 0 {
			return nil, nil
		}

		currentRefs := refsOf(in.current)
		var kept []string
		switch {
		case !in.present:
			kept = append(kept, currentRefs...)
		case in.isNull():
		default:
			var refs []string
			if err := json.Unmarshal(in.raw, &refs); err != nil {
				return nil, fieldErr(fld, "%s muss eine Liste von Bildreferenzen sein.", fld.Label)
			}
			for _, ref := range refs {
				if !contains(currentRefs, ref) {
					return nil, fieldErr(fld, "%s: unbekanntes Bild.", fld.Label)
				}
				if !contains(kept, ref) {
					kept = append(kept, ref)
				}
			}
		}

		if len(kept)+len(in.uploads) > limit {
			return nil, fieldErr(fld, "%s: höchstens %d Bilder erlaubt.", fld.Label, limit)
		}
		return &Change{Field: fld, Value: MultiImage{Images: kept}, Uploads: in.uploads}, nil
	}
}

func fieldErr(fld field.Field, format string, args ...interface{}) error {
	return core.NewFieldValidationError(fld.Key, fmt.Sprintf(format, args...))
}

func refsOf(v Value) []string {
	if v == nil {
		return nil
	}
	return v.Refs()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func sortedFields(flds []field.Field) []field.Field {
	sorted := append([]field.Field(nil), flds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return sorted
}
