package relay

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Kind tags the content carried by a chat Message.
type Kind string

// Known message kinds. Any other value is relayed as opaque content.
const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Known reports whether k is one of the kinds the server understands.
func (k Kind) Known() bool {
	return k == KindText || k == KindFile
}

// Attachment describes a file already stored by the upload service.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Message is a user-authored chat message. Room is the only field the router
// acts on; everything else is passed through.
type Message struct {
	Room   string
	Sender string
	Kind   Kind
	// Text is set for KindText.
	Text string
	// File is set for KindFile.
	File *Attachment
	// Extra holds every key not listed above, and any listed key whose value
	// has an unexpected JSON type.
	Extra map[string]json.RawMessage

	raw json.RawMessage
}

// ParseMessage decodes a send_message payload and keeps its original bytes.
// Only room has to decode; any other field of an unexpected JSON type is
// left unset on the Message and kept in Extra.
func ParseMessage(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var m Message
	if _, err := decodeField(fields, "room", &m.Room); err != nil {
		return Message{}, fmt.Errorf("%w: field %q: %v", ErrInvalidMessage, "room", err)
	}

	typed := map[string]bool{"room": true}
	typed["sender"] = tryField(fields, "sender", &m.Sender)
	typed["type"] = tryField(fields, "type", &m.Kind)

	switch m.Kind {
	case KindText:
		typed["text"] = tryField(fields, "text", &m.Text)
	case KindFile:
		var a Attachment
		typed["name"] = tryField(fields, "name", &a.Name)
		typed["url"] = tryField(fields, "url", &a.URL)
		typed["size"] = tryField(fields, "size", &a.Size)
		m.File = &a
	}

	extra := maps.Clone(fields)
	for k, ok := range typed {
		if ok {
			delete(extra, k)
		}
	}
	if len(extra) > 0 {
		m.Extra = extra
	}

	m.raw = append(json.RawMessage(nil), data...)
	return m, nil
}

// decodeField unmarshals fields[key] into dst and reports whether the key
// was present.
func decodeField(fields map[string]json.RawMessage, key string, dst any) (bool, error) {
	v, ok := fields[key]
	if !ok || string(v) == "null" {
		return ok, nil
	}
	return true, json.Unmarshal(v, dst)
}

// tryField reports whether key was present and decoded into dst. A value of
// the wrong type leaves dst untouched.
func tryField(fields map[string]json.RawMessage, key string, dst any) bool {
	present, err := decodeField(fields, key, dst)
	return present && err == nil
}

// Validate checks the fields the router depends on.
func (m Message) Validate() error {
	if m.Room == "" {
		return fmt.Errorf("%w: missing room", ErrInvalidMessage)
	}
	return nil
}

// MarshalJSON returns the original payload when the message was parsed, and
// otherwise rebuilds it from its fields.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}

	out := make(map[string]any, len(m.Extra)+6)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["room"] = m.Room
	if m.Sender != "" {
		out["sender"] = m.Sender
	}
	if m.Kind != "" {
		out["type"] = m.Kind
	}
	switch m.Kind {
	case KindText:
		out["text"] = m.Text
	case KindFile:
		if m.File != nil {
			out["name"] = m.File.Name
			out["url"] = m.File.URL
			out["size"] = m.File.Size
		}
	}
	return json.Marshal(out)
}
