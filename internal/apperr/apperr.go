// Package apperr classifies failures into a fixed set of kinds, each with a
// user-facing message. Kinds are decided once where the failure happens.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindInvalidCredential
	KindPermissionDenied
	KindRevokedCredential
	KindTransport
	KindTimeout
	KindParse
	KindEmptyInput
	KindQuotaExceeded
	KindIngestion
	KindInvalidInput
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindConfig:            "config",
	KindInvalidCredential: "invalid_credential",
	KindPermissionDenied:  "permission_denied",
	KindRevokedCredential: "revoked_credential",
	KindTransport:         "transport",
	KindTimeout:           "timeout",
	KindParse:             "parse",
	KindEmptyInput:        "empty_input",
	KindQuotaExceeded:     "quota_exceeded",
	KindIngestion:         "ingestion",
	KindInvalidInput:      "invalid_input",
	KindNotFound:          "not_found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Default user-facing messages. Callers may override per error.
var kindMessages = map[Kind]string{
	KindUnknown:           "Something went wrong while contacting the AI. Please try again later.",
	KindConfig:            "The AI API key is not configured. Set GEMINI_API_KEY and restart the service.",
	KindInvalidCredential: "The AI API key was rejected. Check that the configured key value is correct.",
	KindPermissionDenied:  "The AI API key is not allowed to use this model. Check the key's project permissions.",
	KindRevokedCredential: "The AI API key was revoked or reported as leaked. Issue a new key and update the configuration.",
	KindTransport:         "The AI service is unavailable right now. Please try again later.",
	KindTimeout:           "The AI took too long to answer. Please try again.",
	KindParse:             "The AI returned an answer that could not be read. Try rephrasing your request.",
	KindEmptyInput:        "Enter a topic or attach at least one file.",
	KindQuotaExceeded:     "Daily limit reached. Upgrade to PRO for unlimited generations.",
	KindIngestion:         "The file could not be uploaded.",
	KindInvalidInput:      "The request is invalid.",
	KindNotFound:          "Nothing was found.",
}

type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns a copy of e tagged with the failing operation.
func (e *Error) WithOp(op string) *Error {
	cp := *e
	cp.Op = op
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain. Bare context
// errors are mapped so cancelled calls never surface as unknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns readable text for any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return kindMessages[KindOf(err)]
}

// DefaultMessage returns the stock message for kind.
func DefaultMessage(kind Kind) string {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return kindMessages[KindUnknown]
}

// Retryable reports whether repeating the same action unchanged may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindTimeout, KindUnknown:
		return true
	default:
		return false
	}
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfig:
		return http.StatusServiceUnavailable
	case KindInvalidCredential, KindPermissionDenied, KindRevokedCredential:
		return http.StatusBadGateway
	case KindTransport:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindParse:
		return http.StatusUnprocessableEntity
	case KindEmptyInput, KindInvalidInput, KindIngestion:
		return http.StatusBadRequest
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Constructors with stock messages for the common kinds.
func Config(message string) *Error {
	if message == "" {
		message = kindMessages[KindConfig]
	}
	return New(KindConfig, message)
}

func EmptyInput() *Error {
	return New(KindEmptyInput, kindMessages[KindEmptyInput])
}

func QuotaExceeded(limit int) *Error {
	return New(KindQuotaExceeded, fmt.Sprintf("Daily limit reached (%d per day). Upgrade to PRO for unlimited generations.", limit))
}

func Parse(err error) *Error {
	return Wrap(err, KindParse, kindMessages[KindParse])
}

func Transport(err error) *Error {
	return Wrap(err, KindTransport, kindMessages[KindTransport])
}

func Timeout(err error) *Error {
	return Wrap(err, KindTimeout, kindMessages[KindTimeout])
}
