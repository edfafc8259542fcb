// Package apperr defines the error taxonomy shared by the gateway handlers,
// the organization services and the billing synchronizer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindBadRequest
	KindNotFound
	KindNoOrganization
	KindConflictOtherOrg
	KindQuotaExceeded
	KindInvalidSignature
	KindUpstream
	KindMisconfigured
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindNoOrganization:
		return "no_organization"
	case KindConflictOtherOrg:
		return "conflict_other_org"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindUpstream:
		return "upstream_error"
	case KindMisconfigured:
		return "misconfigured"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status for the kind
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindQuotaExceeded:
		return http.StatusForbidden
	case KindBadRequest, KindInvalidSignature:
		return http.StatusBadRequest
	case KindNotFound, KindNoOrganization:
		return http.StatusNotFound
	case KindConflictOtherOrg:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Message is safe to show to callers; Err is
// kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kinded is implemented by typed errors from other packages that map onto
// the taxonomy without depending on *Error.
type Kinded interface {
	error
	ErrorKind() Kind
}

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }

// NoOrganization is returned when no organization can be resolved or created
func NoOrganization() *Error {
	return New(KindNoOrganization, "no organization found for user")
}

// ConflictOtherOrg is returned when an identity is already bound to another tenant
func ConflictOtherOrg(email string) *Error {
	return Newf(KindConflictOtherOrg, "user %s already belongs to another organization", email)
}

// InvalidSignature is returned when a webhook signature cannot be verified
func InvalidSignature(reason string) *Error {
	return Newf(KindInvalidSignature, "invalid signature: %s", reason)
}

// Upstream wraps a failure from the payment processor, identity provider or storage
func Upstream(service string, err error) *Error {
	return Wrap(KindUpstream, service+" request failed", err)
}

// Misconfigured reports a missing or invalid server-side setting
func Misconfigured(setting string) *Error {
	return Newf(KindMisconfigured, "server misconfigured: %s is not set", setting)
}

// KindOf returns the kind of err, KindInternal when it is unclassified
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.ErrorKind()
	}
	return KindInternal
}

// PublicMessage returns the message that may be returned to a caller
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Kind == KindUpstream && appErr.Err != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
		}
		return appErr.Message
	}
	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.Error()
	}
	return "internal server error"
}

// Is reports whether err is of the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
