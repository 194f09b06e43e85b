// Package testhelpers provides common utilities and helper functions for
// testing the chat server over real HTTP and WebSocket connections.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/relay"
)

// DefaultTimeout bounds every wait for a server event.
const DefaultTimeout = 2 * time.Second

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// WebSocketURL converts an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// DialWebSocket opens a WebSocket connection with the given Origin header and
// returns the handshake response status alongside any error.
func DialWebSocket(url, origin string) (*websocket.Conn, int, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	status := 0
	if resp != nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}
	return conn, status, err
}

// ConnectWebSocket dials url with TestOrigin and fails the test on error.
// The connection is closed when the test ends.
func ConnectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := DialWebSocket(url, TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one envelope.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(relay.Envelope{Event: event, Data: raw}))
}

// Join sends a join event.
func Join(t *testing.T, conn *websocket.Conn, username, room string) {
	t.Helper()
	SendEvent(t, conn, relay.EventJoin, relay.JoinRequest{Username: username, Room: room})
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// EventStream reads envelopes from a connection in the background so tests
// can wait for, or rule out, events without breaking the connection.
type EventStream struct {
	events chan relay.Envelope
}

// Listen starts reading conn. Frames carrying several newline separated
// envelopes are split. The stream closes when the connection does.
func Listen(conn *websocket.Conn) *EventStream {
	s := &EventStream{events: make(chan relay.Envelope, 256)}
	go func() {
		defer close(s.events)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, line := range strings.Split(string(data), "\n") {
				var env relay.Envelope
				if err := json.Unmarshal([]byte(line), &env); err != nil {
					continue
				}
				s.events <- env
			}
		}
	}()
	return s
}

// Next returns the next envelope or fails the test after DefaultTimeout.
func (s *EventStream) Next(t *testing.T) relay.Envelope {
	t.Helper()
	select {
	case env, ok := <-s.events:
		require.True(t, ok, "connection closed while waiting for an event")
		return env
	case <-time.After(DefaultTimeout):
		require.FailNow(t, "timed out waiting for an event")
		return relay.Envelope{}
	}
}

// NextStatus returns the text of the next event, which must be a status.
func (s *EventStream) NextStatus(t *testing.T) string {
	t.Helper()
	env := s.Next(t)
	require.Equal(t, relay.EventStatus, env.Event, "payload %s", env.Data)

	var notice relay.StatusNotice
	require.NoError(t, json.Unmarshal(env.Data, &notice))
	return notice.Msg
}

// NextMessage returns the raw payload of the next event, which must be a
// receive_message.
func (s *EventStream) NextMessage(t *testing.T) json.RawMessage {
	t.Helper()
	env := s.Next(t)
	require.Equal(t, relay.EventReceiveMessage, env.Event, "payload %s", env.Data)
	return env.Data
}

// ExpectNone fails the test if an event arrives within wait.
func (s *EventStream) ExpectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case env, ok := <-s.events:
		if ok {
			require.FailNow(t, "unexpected event", "%s %s", env.Event, env.Data)
		}
	case <-time.After(wait):
	}
}

// WaitClosed reports whether the connection closed within DefaultTimeout.
// Pending events are discarded.
func (s *EventStream) WaitClosed() bool {
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case _, ok := <-s.events:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
