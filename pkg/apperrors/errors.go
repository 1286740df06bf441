package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrNoProvidersAvailable  = errors.New("no providers available")
	ErrNoLocalProvider       = errors.New("no local provider available for a privacy-restricted request")
	ErrGenerationFailed      = errors.New("unable to generate a response right now, please try again")
	ErrAnalysisFailed        = errors.New("unable to analyze this incident right now, please try again")
	ErrNotAViolation         = errors.New("violation check did not find a violation")
	ErrRequiresReview        = errors.New("violation needs human review before a warning can be issued")
	ErrInvalidProviderConfig = errors.New("invalid provider configuration")
)

// PublicError pairs a generic, user-safe message with the internal cause.
// Error() exposes only the public message; errors.Is/As still see both.
type PublicError struct {
	Public error
	Cause  error
}

// NewPublicError wraps cause behind a user-safe sentinel.
func NewPublicError(public, cause error) *PublicError {
	return &PublicError{Public: public, Cause: cause}
}

func (e *PublicError) Error() string {
	return e.Public.Error()
}

func (e *PublicError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Public}
	}
	return []error{e.Public, e.Cause}
}

// PublicMessage returns the message safe to show an end user for err.
func PublicMessage(err error) string {
	var pub *PublicError
	if errors.As(err, &pub) {
		return pub.Public.Error()
	}
	return ErrGenerationFailed.Error()
}
