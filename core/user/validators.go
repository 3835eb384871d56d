package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/abiboard/core"
	appfs "github.com/trezcool/abiboard/fs"
)

const commonPasswordsAsset = "assets/common-passwords.txt.gz"

var (
	roleTag  = "role"
	roleText = "Ungültige Rolle."

	usernameOrEmailTag  = "username_or_email"
	usernameOrEmailText = "Benutzername oder E-Mail-Adresse ist erforderlich."

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("Das Passwort muss mindestens %d Zeichen lang sein.", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "Das Passwort darf keine Leerzeichen enthalten."

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "Das Passwort darf nicht nur aus Ziffern bestehen."

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "Das Passwort muss mindestens einen Groß- und einen Kleinbuchstaben, eine Ziffer und ein Sonderzeichen enthalten."
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "Das Passwort ist den Benutzerdaten zu ähnlich."

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "Das Passwort ist zu verbreitet."

	commonPasswords     []string
	commonPasswordsOnce sync.Once
)

// InitValidators registers the user validators and their German translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	commonPasswordsOnce.Do(loadCommonPasswords)

	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{})
	core.RegisterCustomTranslation(validate, translator, usernameOrEmailTag, usernameOrEmailText)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

func loadCommonPasswords() {
	file, err := appfs.FS.Open(commonPasswordsAsset)
	if err != nil {
		return
	}
	defer file.Close()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		return
	}
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			commonPasswords = append(commonPasswords, strings.ToLower(pwd))
		}
	}
	sort.Strings(commonPasswords)
}

func isCommonPassword(pwd string) bool {
	lpwd := strings.ToLower(pwd)
	idx := sort.SearchStrings(commonPasswords, lpwd)
	return idx < len(commonPasswords) && commonPasswords[idx] == lpwd
}

// Custom Validators

func roleValidation(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// userStructValidation does struct level validation on NewUser and UpdateUser structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validateUsernameAndEmail(usr.Username, usr.Email, sl)
		validatePassword(usr.Password, usr.Name, usr.Username, usr.Email, sl)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, usr.Name, usr.Username, usr.Email, sl)
		}
	}
}

// validateUsernameAndEmail checks that one of username or email is provided
func validateUsernameAndEmail(uname, email string, sl validator.StructLevel) {
	if uname == "" && email == "" {
		sl.ReportError(uname, "username", "Username", usernameOrEmailTag, "")
		sl.ReportError(email, "email", "Email", usernameOrEmailTag, "")
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func validatePassword(pwd, name, uname, email string, sl validator.StructLevel) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount         int
		hasUpper, hasLower bool
	)

	runes := []rune(pwd)
	if len(runes) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range runes {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if unicode.IsUpper(char) {
			hasUpper = true
		}
		if unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == len(runes) {
		reportErr(pwdNotAllNumTag)
		return
	}

	if !(hasUpper && hasLower && digitCount > 0 && specialRegex.MatchString(pwd)) {
		reportErr(pwdComplexityTag)
		return
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(strings.ToLower(pass), ""), strings.Split(usrAttr, "")).QuickRatio()
	}
	if getRatio(pwd, strings.ToLower(name)) >= pwdMaxSim ||
		getRatio(pwd, uname) >= pwdMaxSim ||
		getRatio(pwd, email) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
		return
	}

	if isCommonPassword(pwd) {
		reportErr(pwdNoCommonTag)
	}
}
