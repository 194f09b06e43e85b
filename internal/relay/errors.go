package relay

import "errors"

var (
	// ErrUnknownConnection is returned when an operation references a
	// connection id that is not registered.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrInvalidJoinRequest is returned when a join is missing its username or room.
	ErrInvalidJoinRequest = errors.New("invalid join request")
	// ErrInvalidMessage is returned when a chat message has no room.
	ErrInvalidMessage = errors.New("invalid message")
)
