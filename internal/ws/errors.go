package ws

import "errors"

// Registry errors.
var (
	// ErrRegistryFull indicates the connection limit has been reached and no
	// further clients can be admitted.
	ErrRegistryFull = errors.New("connection limit reached")
)
