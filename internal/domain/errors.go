package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound           = errors.New("domain: not found")
	ErrConflict           = errors.New("domain: conflict")
	ErrInvalidRequest     = errors.New("domain: invalid request")
	ErrUnsupportedVersion = errors.New("domain: unsupported job version")
)
