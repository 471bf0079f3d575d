// Package validate checks request structs against their `validate` tags and
// reports the first violation as an invalid-input error.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"backend-microblog/internal/shared/apperr"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

// ReservedNickname is taken by the viewer's own profile route.
const ReservedNickname = "me"

// nicknameUnsafe lists characters that cannot appear in a nickname path
// segment even after escaping.
const nicknameUnsafe = "/?#%\\"

// Nickname reports whether nickname can be used as an identity handle: it is
// not the reserved name and contains no path-unsafe or control characters.
func Nickname(nickname string) bool {
	if strings.EqualFold(nickname, ReservedNickname) {
		return false
	}
	for _, r := range nickname {
		if unicode.IsControl(r) || strings.ContainsRune(nicknameUnsafe, r) {
			return false
		}
	}
	return true
}

// SanitizeNickname drops the characters Nickname rejects. A reserved result
// comes back empty.
func SanitizeNickname(nickname string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(nicknameUnsafe, r) {
			return -1
		}
		return r
	}, nickname)
	cleaned = strings.TrimSpace(cleaned)
	if strings.EqualFold(cleaned, ReservedNickname) {
		return ""
	}
	return cleaned
}

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = val.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return Nickname(fl.Field().String())
	})
	return val
}

func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperr.Wrap(apperr.ErrInvalidInput, message(verrs[0]))
	}
	return apperr.Wrap(apperr.ErrInvalidInput, err.Error())
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "nickname":
		return fmt.Sprintf("%s must not be %q or contain / ? # %% or \\", fe.Field(), ReservedNickname)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
