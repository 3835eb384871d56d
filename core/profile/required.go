package profile

import (
	"fmt"

	"github.com/trezcool/abiboard/core/field"
)

// CheckRequired lists a message per active required field without a value, in field order.
// values holds the stored values by field ID.
func CheckRequired(flds []field.Field, values map[string]Value) []string {
	var missing []string
	for _, fld := range sortedFields(flds) {
		if !fld.Active || !fld.Required || !fld.Type.Valid() {
			continue
		}
		if val, ok := values[fld.ID]; !ok || val == nil || val.Empty() {
			missing = append(missing, fmt.Sprintf("%s ist ein Pflichtfeld.", fld.Label))
		}
	}
	return missing
}
