package auth

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// MinMasterPasswordLength is the shortest master password the policy accepts.
const MinMasterPasswordLength = 12

// ValidateMasterPassword applies the master password policy requirements.
func ValidateMasterPassword(pw string) error {
	if len(pw) < MinMasterPasswordLength {
		return policyErr("password must be at least %d characters long", MinMasterPasswordLength)
	}
	if !hasUpper(pw) {
		return policyErr("password must include an uppercase letter")
	}
	if !hasDigit(pw) {
		return policyErr("password must include a digit")
	}
	if !hasSpecial(pw) {
		return policyErr("password must include a special character")
	}
	return nil
}

func policyErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			return true
		}
	}
	return false
}
