// Package common defines sentinel errors and constants shared by the client
// and server layers of medsync. Callers should use errors.Is to match them.
package common

import "errors"

var (
	// ErrNotFound is returned by mutations addressed at a missing id.
	// Lookups report absence with an ok flag instead.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps every failure of the local persistence layer.
	ErrStorage = errors.New("storage failure")

	// ErrTransient marks remote failures worth retrying (network, timeout).
	ErrTransient = errors.New("transient sync failure")

	// ErrConflict reports that the authority holds a different version.
	ErrConflict = errors.New("sync conflict")

	// ErrAlreadyResolved is returned when resolving a closed conflict.
	ErrAlreadyResolved = errors.New("conflict already resolved")

	ErrValidation = errors.New("validation error")

	// ErrDuplicate is returned when a new record repeats a unique field of
	// an existing one.
	ErrDuplicate = errors.New("duplicate record")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
