package domain

import (
	"errors"
	"fmt"
)

// ErrorCode tags every error the orchestrator delivers.
type ErrorCode string

const (
	CodeProductNotFound    ErrorCode = "product_not_found"
	CodeCatalogUnavailable ErrorCode = "catalog_unavailable"
	CodeSessionError       ErrorCode = "session_error"
	CodeOfferingsNotFound  ErrorCode = "offerings_not_found"
	CodePurchasePending    ErrorCode = "purchase_pending"
	CodePurchaseFailed     ErrorCode = "purchase_failed"
	CodeRestoreFailed      ErrorCode = "restore_failed"
	CodeTransportFailed    ErrorCode = "transport_failed"
	CodeEligibilityFailed  ErrorCode = "eligibility_failed"
	CodeCanceled           ErrorCode = "canceled"
)

var codeMessages = map[ErrorCode]string{
	CodeProductNotFound:    "product not found",
	CodeCatalogUnavailable: "store catalog unavailable for product",
	CodeSessionError:       "session could not be established",
	CodeOfferingsNotFound:  "offerings not found",
	CodePurchasePending:    "purchase is pending",
	CodePurchaseFailed:     "purchase failed",
	CodeRestoreFailed:      "restore failed",
	CodeTransportFailed:    "transport failed",
	CodeEligibilityFailed:  "eligibility check failed",
	CodeCanceled:           "purchase canceled by user",
}

// Error is the single tagged error value delivered to callers.
type Error struct {
	Code  ErrorCode
	Cause error
}

func (e *Error) Error() string {
	msg, ok := codeMessages[e.Code]
	if !ok {
		msg = string(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	// ErrProductNotFound indicates the product id is unknown or has no store counterpart.
	ErrProductNotFound = &Error{Code: CodeProductNotFound}

	// ErrCatalogUnavailable indicates no store metadata exists for the product.
	ErrCatalogUnavailable = &Error{Code: CodeCatalogUnavailable}

	// ErrSessionError indicates the backend session could not be established.
	ErrSessionError = &Error{Code: CodeSessionError}

	// ErrOfferingsNotFound indicates neither the session nor the cache holds offerings.
	ErrOfferingsNotFound = &Error{Code: CodeOfferingsNotFound}

	// ErrPurchasePending indicates the store reported the payment as not yet settled.
	ErrPurchasePending = &Error{Code: CodePurchasePending}

	// ErrPurchaseFailed indicates the store or the backend rejected a purchase.
	ErrPurchaseFailed = &Error{Code: CodePurchaseFailed}

	// ErrRestoreFailed indicates the purchase history could not be restored.
	ErrRestoreFailed = &Error{Code: CodeRestoreFailed}

	// ErrTransportFailed indicates a network or billing transport failure.
	ErrTransportFailed = &Error{Code: CodeTransportFailed}

	// ErrEligibilityFailed indicates the trial eligibility check failed.
	ErrEligibilityFailed = &Error{Code: CodeEligibilityFailed}

	// ErrCanceled indicates the user left the store purchase flow.
	ErrCanceled = &Error{Code: CodeCanceled}
)

// NewError creates a tagged error wrapping cause.
func NewError(code ErrorCode, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

// AsError normalizes err into a tagged error. An err that already is (or
// wraps) an *Error keeps its own code; anything else is wrapped with code.
func AsError(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Code: code, Cause: err}
}

// CodeOf returns the code of the first tagged error in err's chain.
func CodeOf(err error) ErrorCode {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	return ""
}
