package settlement

import "errors"

// Failure taxonomy. Every operation aborts atomically; callers classify with
// errors.Is and retry only after remedying the reported precondition.
var (
	// Authorization failures.
	ErrDoctorNotRegistered = errors.New("doctor not registered")
	ErrConsentMissing      = errors.New("no consent on file")
	ErrNoCoverage          = errors.New("no coverage policy on file")
	ErrNotAuthorized       = errors.New("caller not authorized")

	// State failures.
	ErrInvalidStatus      = errors.New("claim status does not permit operation")
	ErrReviewWindowOpen   = errors.New("review window has not elapsed")
	ErrReviewWindowClosed = errors.New("review window has elapsed")

	// Resource failures.
	ErrInsufficientCapacity = errors.New("insufficient reserve capacity")

	// Boundary invariant violations.
	ErrInvalidAmount = errors.New("claim amount must be positive")
	ErrInvalidParty  = errors.New("invalid claim party")
)
