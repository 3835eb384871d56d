package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/de"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	de_translations "github.com/go-playground/validator/v10/translations/de"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "Nur Buchstaben, Ziffern und Unterstriche sind erlaubt."
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	notBlankTag  = "notblank"
	notBlankText = "Dieses Feld darf nicht leer sein."

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "Dieses Feld ist erforderlich."
)

// NewTranslator returns the German translator used for validation messages.
func NewTranslator() ut.Translator {
	_de := de.New()
	uni := ut.New(_de, _de)
	translator, _ := uni.GetTranslator("de")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = de_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	RegisterCustomTranslation(validate, translator, notBlankTag, notBlankText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}
