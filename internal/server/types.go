// Package server defines transport errors, drop reasons and utility helpers
// that are reused across client and hub logic.
package server

import (
	"errors"
	"strings"

	"github.com/Tyrowin/roomchat/internal/relay"
)

var (
	// ErrClientGone is returned when delivering to a connection that is no
	// longer attached to the hub.
	ErrClientGone = errors.New("client gone")
	// ErrSendBufferFull is returned when a connection's outbound queue is full.
	// The connection is closed as a result.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Reasons recorded when an inbound event is dropped.
const (
	dropRateLimited    = "rate_limited"
	dropMalformed      = "malformed"
	dropUnknownEvent   = "unknown_event"
	dropInvalidJoin    = "invalid_join"
	dropInvalidMessage = "invalid_message"
	dropUnknownConn    = "unknown_connection"
)

func dropReason(err error) string {
	switch {
	case errors.Is(err, relay.ErrInvalidJoinRequest):
		return dropInvalidJoin
	case errors.Is(err, relay.ErrInvalidMessage):
		return dropInvalidMessage
	case errors.Is(err, relay.ErrUnknownConnection):
		return dropUnknownConn
	default:
		return dropMalformed
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
