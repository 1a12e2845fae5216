package service

import "errors"

// Service-level sentinel errors. Handlers map these onto HTTP codes with
// errors.Is; anything else is treated as an internal failure.
var (
	ErrCardNotFound         = errors.New("card not found")
	ErrInvalidPlan          = errors.New("invalid plan")
	ErrCardAlreadyCompleted = errors.New("card already completed")
	ErrCardNotCompleted     = errors.New("card not completed")
	ErrInsufficientSessions = errors.New("insufficient sessions")
	ErrPhoneInvalid         = errors.New("phone invalid")
	ErrPhoneTaken           = errors.New("phone already registered")
	ErrAppointmentInvalid   = errors.New("appointment invalid")
	ErrAmbiguousDuplicate   = errors.New("ambiguous duplicate cards")
	ErrMergeAborted         = errors.New("card merge aborted")
	ErrPassUnavailable      = errors.New("wallet pass unavailable")
	ErrProviderUnavailable  = errors.New("wallet provider unavailable")
)
