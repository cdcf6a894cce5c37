// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotAMember indicates the user does not belong to the target conversation.
	ErrNotAMember = errors.New("not a conversation member")

	// ErrAlreadyIdentified indicates a second identify with a different user id
	// on the same connection.
	ErrAlreadyIdentified = errors.New("connection already identified")

	// ErrMalformedEnvelope indicates an inbound frame that failed to parse or validate.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)
