package field

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/abiboard/core"
)

var (
	fieldKeyTag   = "fieldkey"
	fieldKeyText  = "Der Schlüssel muss mit einem Kleinbuchstaben beginnen und darf nur Buchstaben und Ziffern enthalten."
	fieldKeyRegex = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)

	fieldTypeTag  = "fieldtype"
	fieldTypeText = "Ungültiger Feldtyp."
)

// InitValidators registers the field validators and their German translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(fieldKeyTag, fieldKeyValidation)
	core.RegisterCustomTranslation(validate, translator, fieldKeyTag, fieldKeyText)

	_ = validate.RegisterValidation(fieldTypeTag, fieldTypeValidation)
	core.RegisterCustomTranslation(validate, translator, fieldTypeTag, fieldTypeText)
}

// ValidKey reports whether key may be used as a field key.
func ValidKey(key string) bool {
	return fieldKeyRegex.MatchString(key)
}

func fieldKeyValidation(fl validator.FieldLevel) bool {
	return ValidKey(fl.Field().String())
}

func fieldTypeValidation(fl validator.FieldLevel) bool {
	return Type(fl.Field().String()).Valid()
}
