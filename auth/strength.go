package auth

import (
	"fmt"

	"github.com/nbutton23/zxcvbn-go"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
)

// Strength summarises a zxcvbn estimate for display.
type Strength struct {
	Score     int // 0 (weakest) to 4
	Entropy   float64
	CrackTime string
}

// EstimateStrength scores pw. userInputs are words the estimator should treat
// as guessable, such as the site or username.
func EstimateStrength(pw string, userInputs ...string) Strength {
	m := zxcvbn.PasswordStrength(pw, userInputs)
	return Strength{Score: m.Score, Entropy: m.Entropy, CrackTime: m.CrackTimeDisplay}
}

// ValidateOptions control ValidateMasterPasswordAdvanced.
type ValidateOptions struct {
	// MinZXCVBNScore rejects passwords scoring below it. Zero disables the check.
	MinZXCVBNScore int
	UserInputs     []string
}

// DefaultValidateOptions returns the options used when a vault is initialised.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{MinZXCVBNScore: 3}
}

// ValidateMasterPasswordAdvanced applies the composition rules, then the
// strength estimate.
func ValidateMasterPasswordAdvanced(pw string, opts ValidateOptions) error {
	if err := ValidateMasterPassword(pw); err != nil {
		return err
	}
	if opts.MinZXCVBNScore <= 0 {
		return nil
	}
	s := EstimateStrength(pw, opts.UserInputs...)
	if s.Score < opts.MinZXCVBNScore {
		return fmt.Errorf("%w: password is too guessable (score %d/4, cracked in %s)",
			apperrors.ErrInvalidInput, s.Score, s.CrackTime)
	}
	return nil
}
