// Package validation holds input rules shared by the HTTP binding layer and
// the services.
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/you/accountsvc/domain"
)

const (
	NicknameMinLength = 2
	NicknameMaxLength = 32
)

var (
	strict   = bluemonday.StrictPolicy()
	validate = validator.New()
)

// Email checks the address format. The caller normalises first.
func Email(email string) error {
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return domain.NewValidationError("email", "must be a valid email address")
	}
	return nil
}

// Nickname checks length and rejects control characters and markup
func Nickname(nickname string) error {
	n := utf8.RuneCountInString(nickname)
	if n < NicknameMinLength || n > NicknameMaxLength {
		return domain.NewValidationError("nickname", "must be between 2 and 32 characters")
	}
	if strings.IndexFunc(nickname, unicode.IsControl) >= 0 {
		return domain.NewValidationError("nickname", "must not contain control characters")
	}
	if strict.Sanitize(nickname) != nickname {
		return domain.NewValidationError("nickname", "must not contain markup")
	}
	return nil
}

// RegisterTags adds the "account_email", "nickname" and "password" tags to v.
// account_email normalises before checking the format. The password tag
// applies policy.
func RegisterTags(v *validator.Validate, policy domain.PasswordPolicy) error {
	if err := v.RegisterValidation("account_email", func(fl validator.FieldLevel) bool {
		return Email(domain.NormalizeEmail(fl.Field().String())) == nil
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return Nickname(strings.TrimSpace(fl.Field().String())) == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return policy.Check(fl.Field().String()) == nil
	})
}
