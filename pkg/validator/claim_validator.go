package validator

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrInvalidAmount  = errors.New("invalid claim amount")
	ErrInvalidAccount = errors.New("invalid account identifier")
	ErrSameParty      = errors.New("patient and doctor must differ")
)

// ClaimValidator checks request shapes at the API boundary. The settlement
// engine re-checks its own invariants; this keeps malformed input from ever
// reaching it.
type ClaimValidator struct {
	accountRegex *regexp.Regexp
}

func NewClaimValidator() *ClaimValidator {
	return &ClaimValidator{
		accountRegex: regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,63}$`),
	}
}

func (v *ClaimValidator) ValidateInitiate(patient, doctor string, amount int64) error {
	var errs []error

	if amount <= 0 {
		errs = append(errs, ErrInvalidAmount)
	}
	if !v.accountRegex.MatchString(patient) {
		errs = append(errs, fmt.Errorf("%w: patient %q", ErrInvalidAccount, patient))
	}
	if !v.accountRegex.MatchString(doctor) {
		errs = append(errs, fmt.Errorf("%w: doctor %q", ErrInvalidAccount, doctor))
	}
	if patient != "" && patient == doctor {
		errs = append(errs, ErrSameParty)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

func (v *ClaimValidator) ValidateAccount(account string) error {
	if !v.accountRegex.MatchString(account) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	return nil
}

func (v *ClaimValidator) ValidateDeposit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
