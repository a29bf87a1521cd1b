package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors for every way a ceremony can fail. Handlers surface all of
// them as the same generic message; the specific kind is kept for logs and
// the audit trail so a caller can never probe which check rejected them.
var (
	ErrChallengeExpired   = errors.New("challenge expired")
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrChallengeMismatch  = errors.New("challenge mismatch")
	ErrOriginMismatch     = errors.New("origin mismatch")
	ErrTypeMismatch       = errors.New("ceremony type mismatch")
	ErrDecode             = errors.New("malformed authenticator payload")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExists   = errors.New("credential already registered")
	ErrSignatureInvalid   = errors.New("signature verification failed")
	ErrUserNotPresent     = errors.New("user presence not asserted")
	ErrLastFactor         = errors.New("cannot remove last authentication factor")
	ErrStore              = errors.New("storage failure")
)

// PublicMessage is the only error text ever returned to an end user for a
// failed ceremony.
const PublicMessage = "verification failed"

// decodeErr wraps a detail string into ErrDecode so errors.Is still matches.
func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// IsVerificationFailure reports whether err is one of the terminal ceremony
// failures, as opposed to a store error a caller may retry.
func IsVerificationFailure(err error) bool {
	for _, kind := range []error{
		ErrChallengeExpired, ErrChallengeNotFound, ErrChallengeMismatch,
		ErrOriginMismatch, ErrTypeMismatch, ErrDecode,
		ErrCredentialNotFound, ErrCredentialExists, ErrSignatureInvalid,
		ErrUserNotPresent,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
