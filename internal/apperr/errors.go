// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrOffline      = errors.New("offline")
	ErrValidation   = errors.New("validation failed")
	ErrStale        = errors.New("stale response")
)
