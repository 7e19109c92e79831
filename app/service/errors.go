package service

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by this package matches exactly one of them via errors.Is.
var (
	ErrValidationFailed      = errors.New("validation failed")
	ErrConflict              = errors.New("conflict")
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrExpired               = errors.New("expired")
	ErrReplayDetected        = errors.New("refresh token replay detected")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

var (
	ErrEmailTaken              = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrNicknameTaken           = fmt.Errorf("%w: nickname already taken", ErrConflict)
	ErrIdentityConflict        = fmt.Errorf("%w: external identity conflicts with an existing member", ErrConflict)
	ErrWeakPassword            = fmt.Errorf("%w: password does not meet policy requirements", ErrValidationFailed)
	ErrUnsupportedProvider     = fmt.Errorf("%w: unsupported oauth provider", ErrValidationFailed)
	ErrMemberNotFound          = fmt.Errorf("%w: member not found", ErrNotFound)
	ErrInvalidCredentials      = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrInvalidToken            = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrOAuthVerificationFailed = fmt.Errorf("%w: oauth verification failed", ErrUnauthorized)
	ErrTokenExpired            = fmt.Errorf("%w: token has expired", ErrExpired)
)

var kinds = []error{
	ErrValidationFailed,
	ErrConflict,
	ErrNotFound,
	ErrUnauthorized,
	ErrExpired,
	ErrReplayDetected,
	ErrDependencyUnavailable,
}

// KindOf returns the failure kind err belongs to, or nil for unclassified errors.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}

// dependencyError converts a raw store, mailer or provider error into ErrDependencyUnavailable.
// Errors that already carry a kind pass through.
func dependencyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDependencyUnavailable, op, err)
}
