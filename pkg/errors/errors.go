// Package errors defines the error taxonomy shared by the phyxlog packages.
//
// Validation errors (configuration shape, buffer selection) are returned
// synchronously by the operation that detected them. Poll failures
// (transport, decode, malformed payload) are reported per poll and leave
// all client state untouched, so the same poll can be retried.
//
// An empty poll is not an error: PollOnce reports it through its bool result.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Validation errors
	ErrMalformedConfig = errors.New("malformed config document")
	ErrMalformedMeta   = errors.New("malformed meta document")
	ErrSelection       = errors.New("invalid buffer selection")
	ErrNoConfiguration = errors.New("no configuration loaded")
	ErrUnknownCommand  = errors.New("unknown command")

	// Poll errors
	ErrTransport         = errors.New("transport error")
	ErrDecode            = errors.New("decode error")
	ErrMalformedResponse = errors.New("malformed buffer response")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsValidation returns true if err was raised while validating caller input
// or a configuration document.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMalformedConfig) ||
		errors.Is(err, ErrMalformedMeta) ||
		errors.Is(err, ErrSelection) ||
		errors.Is(err, ErrNoConfiguration) ||
		errors.Is(err, ErrUnknownCommand)
}

// IsPollFailure returns true if err is a per-poll failure.
func IsPollFailure(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrMalformedResponse)
}

// IsRetriable returns true if repeating the same poll may succeed.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTransport)
}

// Reason returns a short label for err, used as a metric label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrMalformedConfig):
		return "malformed_config"
	case errors.Is(err, ErrMalformedMeta):
		return "malformed_meta"
	case errors.Is(err, ErrSelection):
		return "selection"
	case errors.Is(err, ErrNoConfiguration):
		return "no_configuration"
	default:
		return "internal"
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
