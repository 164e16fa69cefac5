package domain

import "errors"

var (
	// ErrNotFound is returned when a document or statement identifier has
	// no matching record.
	ErrNotFound = errors.New("not found")

	// ErrNoTextAvailable is returned by the parsing stage when neither
	// extraction backend produced usable text for a document.
	ErrNoTextAvailable = errors.New("no extracted text available")
)
