package presence

import "errors"

// Errors reported back to the originating connection.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotInRoom        = errors.New("not in a room")
	ErrMalformedPayload = errors.New("malformed payload")
)
