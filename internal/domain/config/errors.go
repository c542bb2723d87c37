package config

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorization.
const (
	ErrCodeConfigNotFound     = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid      = "CONFIG_INVALID"
	ErrCodeConfigParse        = "CONFIG_PARSE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeLivenessFailed     = "LIVENESS_FAILED"
	ErrCodeFatalLockoutRisk   = "FATAL_LOCKOUT_RISK"
	ErrCodeReadinessTimeout   = "READINESS_TIMEOUT"
	ErrCodePortCollision      = "PLANNING_PORT_COLLISION"
	ErrCodeUnmetPrerequisite  = "PLANNING_UNMET_PREREQ"
	ErrCodeDNSMismatch        = "PROVISION_DNS_MISMATCH"
	ErrCodePortUnavailable    = "PROVISION_PORT_UNAVAILABLE"
	ErrCodeChallengeRejected  = "PROVISION_CHALLENGE_REJECTED"
	ErrCodeProvisionClient    = "PROVISION_CLIENT_ERROR"
	ErrCodeLockHeld           = "LOCK_HELD"
	ErrCodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
	ErrCodeAddressDisagrees   = "ADDRESS_DISCOVERY_DISAGREES"
	ErrCodeCertificateInvalid = "CERTIFICATE_INVALID"
)

// Canonical errors for errors.Is comparisons by code.
var (
	ErrValidationFailed  = NewUserError(ErrCodeValidationFailed, "validation failed")
	ErrLivenessFailed    = NewUserError(ErrCodeLivenessFailed, "liveness check failed")
	ErrFatalLockoutRisk  = NewUserError(ErrCodeFatalLockoutRisk, "rollback failed")
	ErrReadinessTimeout  = NewUserError(ErrCodeReadinessTimeout, "readiness condition timed out")
	ErrPortCollision     = NewUserError(ErrCodePortCollision, "port collision")
	ErrDNSMismatch       = NewUserError(ErrCodeDNSMismatch, "dns mismatch")
	ErrPortUnavailable   = NewUserError(ErrCodePortUnavailable, "port unavailable")
	ErrChallengeRejected = NewUserError(ErrCodeChallengeRejected, "challenge rejected")
	ErrProvisionClient   = NewUserError(ErrCodeProvisionClient, "acme client error")
	ErrLockHeld          = NewUserError(ErrCodeLockHeld, "another run holds the lock")
)

// UserError represents a user-facing error with an actionable suggestion.
// Every failure path in the engine carries both a machine-distinguishable
// code and a human-readable remediation hint.
type UserError struct {
	Code       string // Error code for categorization (e.g., "LIVENESS_FAILED")
	Message    string // User-friendly error message
	Context    string // Subsystem, file path, or other location context
	Suggestion string // Actionable suggestion to fix the error
	Underlying error  // Wrapped error for error chain
}

// Error returns the formatted error message.
func (e *UserError) Error() string {
	var b strings.Builder

	b.WriteString(e.Message)

	if e.Context != "" {
		fmt.Fprintf(&b, " (at %s)", e.Context)
	}

	return b.String()
}

// Unwrap returns the underlying error for error chain support.
func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is supports errors.Is() for comparing error codes.
func (e *UserError) Is(target error) bool {
	if t, ok := target.(*UserError); ok {
		return e.Code == t.Code
	}
	return false
}

// Format returns a fully formatted error with all details.
func (e *UserError) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Context != "" {
		fmt.Fprintf(&b, "\n  Location: %s", e.Context)
	}

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}

	return b.String()
}

// NewUserError creates a new UserError with the given code and message.
func NewUserError(code, message string) *UserError {
	return &UserError{
		Code:    code,
		Message: message,
	}
}

// WithContext returns a new UserError with context set.
func (e *UserError) WithContext(ctx string) *UserError {
	return &UserError{
		Code:       e.Code,
		Message:    e.Message,
		Context:    ctx,
		Suggestion: e.Suggestion,
		Underlying: e.Underlying,
	}
}

// WithSuggestion returns a new UserError with suggestion set.
func (e *UserError) WithSuggestion(suggestion string) *UserError {
	return &UserError{
		Code:       e.Code,
		Message:    e.Message,
		Context:    e.Context,
		Suggestion: suggestion,
		Underlying: e.Underlying,
	}
}

// WithUnderlying returns a new UserError wrapping another error.
func (e *UserError) WithUnderlying(err error) *UserError {
	return &UserError{
		Code:       e.Code,
		Message:    e.Message,
		Context:    e.Context,
		Suggestion: e.Suggestion,
		Underlying: err,
	}
}

// ExitCode maps an error to the process exit code contract:
// 0 success, 1 precondition or validation failure, 2 fatal lockout risk.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue *UserError
	if errors.As(err, &ue) && ue.Code == ErrCodeFatalLockoutRisk {
		return 2
	}
	return 1
}
