// Package server implements the WebSocket and HTTP surface of the room chat
// server.
//
// The implementation is organized into specialized files for configuration, hub
// management, clients, routing, and HTTP handlers. Room membership and
// broadcast routing live in package relay; this package only moves frames
// between sockets and the relay core.
package server
