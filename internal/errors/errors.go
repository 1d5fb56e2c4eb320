// Package errors provides the error vocabulary shared by lightforge
// packages.
//
// Sentinels name the failure class; the structured types carry the
// offending field or argument and unwrap to a sentinel so callers can
// branch with Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotImplemented  = errors.New("not implemented")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrShape           = errors.New("shape mismatch")
	ErrNoCheckpoint    = errors.New("checkpoint required")
)

// ── Structured error types ───────────────────────────────────────────

// ArgumentError reports a value outside an enumerated set.
type ArgumentError struct {
	Name  string   // argument name, e.g. "method"
	Value string   // the rejected value
	Valid []string // accepted values, in display order
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%v: %s %q should be one of [%s]",
		ErrInvalidArgument, e.Name, e.Value, strings.Join(e.Valid, " "))
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArgument }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config key
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := "config: " + e.Field
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return ErrInvalidArgument }

// ── Constructors ─────────────────────────────────────────────────────

// Invalid builds an ArgumentError. valid is copied.
func Invalid(name, value string, valid []string) *ArgumentError {
	return &ArgumentError{
		Name:  name,
		Value: value,
		Valid: append([]string(nil), valid...),
	}
}

// Shapef wraps ErrShape with a formatted detail.
func Shapef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrShape, fmt.Sprintf(format, args...))
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
