package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and for the transaction record
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindTerminalUnavailable Kind = "TERMINAL_UNAVAILABLE"
	KindProviderUnsupported Kind = "PROVIDER_UNSUPPORTED"
	KindThreeDFailed        Kind = "THREE_D_FAILED"
	KindBankRejected        Kind = "BANK_REJECTED"
	KindDecryptError        Kind = "DECRYPT_ERROR"
	KindNetworkError        Kind = "NETWORK_ERROR"
	KindStateConflict       Kind = "STATE_CONFLICT"
	KindNotFound            Kind = "NOT_FOUND"
	KindInternal            Kind = "INTERNAL"
)

// CodeNotSupported is the error code used when a capability is missing
const CodeNotSupported = "NOT_SUPPORTED"

// Error is the structured error carried through the gateway
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Code != "" {
		msg += "[" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error without a cause
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Errorf builds an Error with a formatted message
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, KindInternal if err carries none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or its kind when no code was set
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}
		return string(e.Kind)
	}
	return string(KindInternal)
}

// IsKind reports whether err has the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// MessageOf returns the human readable part of err without the kind prefix
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch {
		case e.Message != "" && e.Err != nil:
			return e.Message + ": " + e.Err.Error()
		case e.Message != "":
			return e.Message
		case e.Err != nil:
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return err.Error()
}
