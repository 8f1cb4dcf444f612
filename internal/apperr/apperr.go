package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInternal     Kind = "internal"
	KindValidation   Kind = "validation"
	KindBusiness     Kind = "business"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
)

// Error is the application error carried from services up to handlers and
// workflow runners. Code is a stable machine-readable identifier.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind and code so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: msg, Fields: fields}
}

func Business(code, msg string) *Error {
	return &Error{Kind: KindBusiness, Code: code, Message: msg}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: resource + "_not_found", Message: resource + " not found"}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "unauthorized", Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "forbidden", Message: msg}
}

func Conflict(resource string) *Error {
	return &Error{Kind: KindConflict, Code: resource + "_conflict", Message: resource + " was modified concurrently"}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: "internal error", Err: err}
}

var (
	ErrInsufficientBuyingPower = Business("insufficient_buying_power", "Insufficient buying power")
	ErrInsufficientBalance     = Business("insufficient_balance", "insufficient balance")
	ErrInsufficientMargin      = Business("insufficient_margin", "insufficient free margin")
	ErrPositionClosed          = Business("position_closed", "position already closed")
	ErrOrderNotCancellable     = Business("order_not_cancellable", "order cannot be cancelled in its current status")
	ErrAccountInactive         = Business("account_inactive", "account is not active")
	ErrTransactionNotPending   = Business("transaction_not_pending", "transaction is not pending")
	ErrKYCNotPending           = Business("kyc_not_pending", "verification is not pending")
	ErrKYCAlreadyPending       = Business("kyc_already_pending", "a verification request is already pending")
	ErrKYCAlreadyApproved      = Business("kyc_already_approved", "identity already verified")
	ErrEmailTaken              = Business("email_taken", "email already registered")
	ErrInvalidCredentials      = Unauthorized("invalid credentials")
)

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindInternal, KindConflict:
		return false
	}
	return true
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindBusiness:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
