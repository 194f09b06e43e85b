// Package relay implements room membership and broadcast routing for the
// chat server.
//
// A Coordinator owns every mutation of the session Registry and the
// RoomIndex. A Router resolves a room's current members and hands encoded
// frames to a Sender, which is the transport's side of the contract. Both
// share the RoomIndex's per-room locks so that notices and messages for one
// room reach every member in the order their operations committed.
package relay
