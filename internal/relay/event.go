package relay

import (
	"encoding/json"
	"fmt"
)

// Event names carried in an Envelope.
const (
	EventJoin           = "join"
	EventSendMessage    = "send_message"
	EventStatus         = "status"
	EventReceiveMessage = "receive_message"
)

// Envelope is the JSON frame exchanged with clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event name")
	}
	return env, nil
}

// EncodeEnvelope builds an outbound frame from an event name and payload.
// A json.RawMessage payload is embedded as is.
func EncodeEnvelope(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// JoinRequest is the payload of a join event.
type JoinRequest struct {
	Username string `json:"username" validate:"required"`
	Room     string `json:"room" validate:"required"`
}

// StatusNotice is the payload of a status event.
type StatusNotice struct {
	Msg string `json:"msg"`
}

func joinedNotice(name string) StatusNotice {
	return StatusNotice{Msg: name + " has joined the room"}
}

func leftNotice(name string) StatusNotice {
	return StatusNotice{Msg: name + " has left the room"}
}
