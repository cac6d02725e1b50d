package sync

import "errors"

var (
	// ErrInvalidPayload marks input that cannot be parsed as a platform object
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrMissingExternalID marks a payload without the platform id it is keyed by
	ErrMissingExternalID = errors.New("payload has no external id")
)
