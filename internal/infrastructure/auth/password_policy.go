package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/you/accountsvc/domain"
)

// bcrypt ignores everything past 72 bytes
const maxPasswordBytes = 72

// PasswordPolicy enforces length and character-class rules
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// Check returns a *domain.ValidationError caused by domain.ErrWeakPassword
// when the password breaks a rule.
func (p PasswordPolicy) Check(password string) error {
	var missing []string

	if len([]rune(password)) < p.MinLength {
		return weak(fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if len(password) > maxPasswordBytes {
		return weak(fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if p.RequireUpper && !upper {
		missing = append(missing, "an uppercase letter")
	}
	if p.RequireLower && !lower {
		missing = append(missing, "a lowercase letter")
	}
	if p.RequireDigit && !digit {
		missing = append(missing, "a digit")
	}
	if p.RequireSymbol && !symbol {
		missing = append(missing, "a symbol")
	}
	if len(missing) > 0 {
		return weak("must contain " + strings.Join(missing, ", "))
	}
	return nil
}

var _ domain.PasswordPolicy = PasswordPolicy{}

func weak(reason string) error {
	return &domain.ValidationError{Field: "password", Reason: reason, Cause: domain.ErrWeakPassword}
}
