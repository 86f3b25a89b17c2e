package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	VaultErrorBadInput           = "VAULT_BAD_INPUT"
	VaultErrorNotFound           = "VAULT_NOT_FOUND"
	VaultErrorUnsupportedFormat  = "VAULT_UNSUPPORTED_FORMAT"
	VaultErrorCorruptSession     = "VAULT_CORRUPT_SESSION"
	VaultErrorUnknownKeyVersion  = "VAULT_UNKNOWN_KEY_VERSION"
	VaultErrorVerificationFailed = "VAULT_VERIFICATION_FAILED"
	VaultErrorDestroyerFailed    = "VAULT_DESTROYER_FAILED"
	VaultErrorStaleTransition    = "VAULT_STALE_TRANSITION"
	VaultErrorLeaseHeld          = "VAULT_LEASE_HELD"
	VaultErrorInternal           = "VAULT_INTERNAL_ERROR"
)

// NewUnsupportedFormatError flags input whose shape matches no known format.
// It is never retried.
func NewUnsupportedFormatError(message string) *goerrors.Error {
	return newVaultError(message, goerrors.CategoryBadInput, VaultErrorUnsupportedFormat)
}

// NewCorruptSessionError flags a recognized format with invalid or truncated
// content. Import retries it a bounded number of times.
func NewCorruptSessionError(message string) *goerrors.Error {
	return newVaultError(message, goerrors.CategoryValidation, VaultErrorCorruptSession)
}

// NewUnknownKeyVersionError flags a decrypt against a purged key version. The
// blob is unreadable and must be routed to manual data recovery.
func NewUnknownKeyVersionError(message string) *goerrors.Error {
	return newVaultError(message, goerrors.CategoryConflict, VaultErrorUnknownKeyVersion)
}

// NewVerificationFailedError carries a check failure. Fatal is recorded in
// metadata so the lifecycle can split reject from review routing.
func NewVerificationFailedError(message string, fatal bool) *goerrors.Error {
	err := newVaultError(message, goerrors.CategoryOperation, VaultErrorVerificationFailed)
	return err.WithMetadata(map[string]any{"fatal": fatal})
}

// NewDestroyerFailedError carries a destroyer failure with its retryability.
func NewDestroyerFailedError(message string, retryable bool) *goerrors.Error {
	err := newVaultError(message, goerrors.CategoryOperation, VaultErrorDestroyerFailed)
	return err.WithMetadata(map[string]any{"retryable": retryable})
}

// NewStaleTransitionError rejects a transition attempted against an
// unexpected current status. Callers re-read and re-decide, never resubmit.
func NewStaleTransitionError(message string) *goerrors.Error {
	return newVaultError(message, goerrors.CategoryConflict, VaultErrorStaleTransition)
}

func IsUnsupportedFormat(err error) bool  { return hasTextCode(err, VaultErrorUnsupportedFormat) }
func IsCorruptSession(err error) bool     { return hasTextCode(err, VaultErrorCorruptSession) }
func IsUnknownKeyVersion(err error) bool  { return hasTextCode(err, VaultErrorUnknownKeyVersion) }
func IsStaleTransition(err error) bool    { return hasTextCode(err, VaultErrorStaleTransition) }
func IsDestroyerFailed(err error) bool    { return hasTextCode(err, VaultErrorDestroyerFailed) }
func IsVerificationFailed(err error) bool { return hasTextCode(err, VaultErrorVerificationFailed) }

// IsFatalVerification reports whether a verification failure forces rejection
// outright rather than human review.
func IsFatalVerification(err error) bool {
	return metadataFlag(err, VaultErrorVerificationFailed, "fatal")
}

// IsRetryableDestroyerFailure reports whether a destroyer failure is
// transient (network, rate limit, timeout) rather than permanent.
func IsRetryableDestroyerFailure(err error) bool {
	return metadataFlag(err, VaultErrorDestroyerFailed, "retryable")
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func metadataFlag(err error, textCode string, key string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != textCode {
		return false
	}
	flag, _ := richErr.Metadata[key].(bool)
	return flag
}

func vaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureVaultErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unsupported") && strings.Contains(msg, "format"):
		return newVaultError(err.Error(), goerrors.CategoryBadInput, VaultErrorUnsupportedFormat)
	case strings.Contains(msg, "corrupt"), strings.Contains(msg, "truncated"), strings.Contains(msg, "malformed"):
		return newVaultError(err.Error(), goerrors.CategoryValidation, VaultErrorCorruptSession)
	case strings.Contains(msg, "key version"):
		return newVaultError(err.Error(), goerrors.CategoryConflict, VaultErrorUnknownKeyVersion)
	case strings.Contains(msg, "lease"), strings.Contains(msg, "lock already held"):
		return newVaultError(err.Error(), goerrors.CategoryConflict, VaultErrorLeaseHeld)
	case strings.Contains(msg, "not found"):
		return newVaultError(err.Error(), goerrors.CategoryNotFound, VaultErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newVaultError(err.Error(), goerrors.CategoryBadInput, VaultErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureVaultErrorEnvelope(mapped)
}

func newVaultError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureVaultErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureVaultErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = vaultHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultVaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultVaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return VaultErrorBadInput
	case goerrors.CategoryValidation:
		return VaultErrorCorruptSession
	case goerrors.CategoryNotFound:
		return VaultErrorNotFound
	case goerrors.CategoryConflict:
		return VaultErrorStaleTransition
	case goerrors.CategoryOperation:
		return VaultErrorVerificationFailed
	default:
		return VaultErrorInternal
	}
}

func vaultHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
