package models

import "errors"

// Business rule violations. Messages are safe to show to the caller.
var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero and at most 9999999999999.99, with at most two decimal places")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrRecipientNotFound    = errors.New("recipient account not found")
	ErrSameAccount          = errors.New("cannot transfer to the same account")
	ErrUnknownMember        = errors.New("one or more invited emails do not belong to a registered user")
	ErrMinorApplicant       = errors.New("users under 18 cannot apply for loans")
	ErrDuplicatePendingLoan = errors.New("a pending loan of this type already exists for this account")
	ErrLoanLimitExceeded    = errors.New("this joint account already has a loan application")
	ErrInvalidLoanType      = errors.New("invalid loan type for this account")
	ErrInvalidLoanState     = errors.New("loan has already been processed")
	ErrBalanceLimitExceeded = errors.New("resulting balance exceeds the maximum an account can hold")

	ErrAccountNotFound    = errors.New("account not found")
	ErrLoanNotFound       = errors.New("loan not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("access denied")
	ErrEmailTaken         = errors.New("a user with this email already exists")
	ErrInvalidOTP         = errors.New("invalid or expired verification code")
	ErrAlreadyVerified    = errors.New("user is already verified")
	ErrUserNotVerified    = errors.New("account not verified, check your email for a verification code")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many failed login attempts, try again later")
	ErrInvalidInput       = errors.New("invalid input")
)

// ErrStoreUnavailable wraps unexpected storage or transport failures. Its
// message is generic; the wrapped detail is for server-side logs only.
var ErrStoreUnavailable = errors.New("service temporarily unavailable")

var domainErrors = []error{
	ErrInvalidAmount, ErrInsufficientFunds, ErrRecipientNotFound, ErrSameAccount,
	ErrUnknownMember, ErrMinorApplicant, ErrDuplicatePendingLoan, ErrLoanLimitExceeded,
	ErrInvalidLoanType, ErrInvalidLoanState, ErrBalanceLimitExceeded, ErrAccountNotFound, ErrLoanNotFound,
	ErrUserNotFound, ErrForbidden, ErrEmailTaken, ErrInvalidOTP, ErrAlreadyVerified,
	ErrUserNotVerified, ErrInvalidCredentials, ErrTooManyAttempts, ErrInvalidInput,
	ErrStoreUnavailable,
}

// IsDomainError reports whether err is, or wraps, one of the errors above.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
