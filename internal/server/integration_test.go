package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/relay"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/testhelpers"
)

const quietPeriod = 200 * time.Millisecond

type testEnv struct {
	srv   *server.Server
	ts    *httptest.Server
	wsURL string
}

func startServer(t *testing.T, customize func(cfg *server.Config)) *testEnv {
	t.Helper()
	cfg := server.NewConfig()
	cfg.UploadDir = t.TempDir()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	if customize != nil {
		customize(cfg)
	}

	srv, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	srv.StartHub()

	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Hub().Shutdown(2 * time.Second) })

	return &testEnv{srv: srv, ts: ts, wsURL: testhelpers.WebSocketURL(ts.URL)}
}

type peer struct {
	conn   *websocket.Conn
	events *testhelpers.EventStream
}

func (e *testEnv) connect(t *testing.T) *peer {
	t.Helper()
	conn := testhelpers.ConnectWebSocket(t, e.wsURL)
	return &peer{conn: conn, events: testhelpers.Listen(conn)}
}

func (e *testEnv) waitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.srv.Hub().Len() == n },
		testhelpers.DefaultTimeout, 10*time.Millisecond)
}

func (p *peer) join(t *testing.T, user, room string) {
	t.Helper()
	testhelpers.Join(t, p.conn, user, room)
}

func (p *peer) send(t *testing.T, payload string) {
	t.Helper()
	require.NoError(t, p.conn.WriteJSON(relay.Envelope{
		Event: relay.EventSendMessage,
		Data:  json.RawMessage(payload),
	}))
}

func TestChatScenario(t *testing.T) {
	env := startServer(t, nil)
	alice := env.connect(t)
	bob := env.connect(t)

	alice.join(t, "alice", "lobby")
	assert.Equal(t, "alice has joined the room", alice.events.NextStatus(t))

	bob.join(t, "bob", "lobby")
	assert.Equal(t, "bob has joined the room", alice.events.NextStatus(t))
	assert.Equal(t, "bob has joined the room", bob.events.NextStatus(t))

	payload := `{"room":"lobby","sender":"alice","type":"text","text":"hi"}`
	alice.send(t, payload)
	assert.JSONEq(t, payload, string(alice.events.NextMessage(t)))
	assert.JSONEq(t, payload, string(bob.events.NextMessage(t)))

	require.NoError(t, testhelpers.CloseWebSocket(bob.conn))
	assert.Equal(t, "bob has left the room", alice.events.NextStatus(t))
	alice.events.ExpectNone(t, quietPeriod)

	env.waitForClients(t, 1)
	assert.Equal(t, 1, len(env.srv.Coordinator().MembersOf("lobby")))
}

func TestRoomsAreIsolated(t *testing.T) {
	env := startServer(t, nil)
	a := env.connect(t)
	b := env.connect(t)

	a.join(t, "ann", "red")
	a.events.NextStatus(t)
	b.join(t, "ben", "blue")
	b.events.NextStatus(t)

	a.send(t, `{"room":"red","sender":"ann","type":"text","text":"only red"}`)
	a.events.NextMessage(t)
	b.events.ExpectNone(t, quietPeriod)
}

func TestRoomSwitchNotifiesBothRooms(t *testing.T) {
	env := startServer(t, nil)
	mover := env.connect(t)
	stayA := env.connect(t)
	stayB := env.connect(t)

	stayA.join(t, "ann", "A")
	stayA.events.NextStatus(t)
	stayB.join(t, "ben", "B")
	stayB.events.NextStatus(t)
	mover.join(t, "max", "A")
	mover.events.NextStatus(t)
	stayA.events.NextStatus(t)

	mover.join(t, "max", "B")

	assert.Equal(t, "max has left the room", stayA.events.NextStatus(t))
	assert.Equal(t, "max has joined the room", stayB.events.NextStatus(t))
	assert.Equal(t, "max has joined the room", mover.events.NextStatus(t))
	mover.events.ExpectNone(t, quietPeriod)
}

func TestMalformedEventsAreDroppedWithoutDisconnect(t *testing.T) {
	env := startServer(t, nil)
	p := env.connect(t)

	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	testhelpers.SendEvent(t, p.conn, "shout", map[string]string{"x": "y"})
	p.join(t, "", "lobby")
	p.join(t, "alice", "")
	p.send(t, `{"sender":"alice","type":"text","text":"no room"}`)
	p.send(t, `{"room":42}`)
	p.events.ExpectNone(t, quietPeriod)

	p.join(t, "alice", "lobby")
	assert.Equal(t, "alice has joined the room", p.events.NextStatus(t))
}

func TestMalformedJoinKeepsPriorRoom(t *testing.T) {
	env := startServer(t, nil)
	p := env.connect(t)
	other := env.connect(t)

	p.join(t, "alice", "lobby")
	p.events.NextStatus(t)
	other.join(t, "bob", "lobby")
	other.events.NextStatus(t)
	p.events.NextStatus(t)

	p.join(t, "", "elsewhere")
	other.events.ExpectNone(t, quietPeriod)

	other.send(t, `{"room":"lobby","sender":"bob","type":"text","text":"still here?"}`)
	p.events.NextMessage(t)
}

func TestFileMessageAfterUpload(t *testing.T) {
	env := startServer(t, nil)
	alice := env.connect(t)
	bob := env.connect(t)
	alice.join(t, "alice", "lobby")
	alice.events.NextStatus(t)
	bob.join(t, "bob", "lobby")
	bob.events.NextStatus(t)
	alice.events.NextStatus(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("quarterly numbers"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(env.ts.URL+"/upload", w.FormDataContentType(), body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var uploaded struct {
		URL  string `json:"url"`
		Name string `json:"name"`
		Size int64  `json:"size"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Equal(t, "report.txt", uploaded.Name)
	assert.Equal(t, int64(17), uploaded.Size)

	payload := fmt.Sprintf(`{"room":"lobby","sender":"alice","type":"file","name":%q,"url":%q,"size":%d}`,
		uploaded.Name, uploaded.URL, uploaded.Size)
	alice.send(t, payload)

	got := bob.events.NextMessage(t)
	assert.JSONEq(t, payload, string(got))
	msg, err := relay.ParseMessage(got)
	require.NoError(t, err)
	require.NotNil(t, msg.File)

	file := testhelpers.MakeRequest(t, http.MethodGet, env.ts.URL+msg.File.URL)
	defer func() { _ = file.Body.Close() }()
	data, err := io.ReadAll(file.Body)
	require.NoError(t, err)
	assert.Equal(t, "quarterly numbers", string(data))
}

func TestDisallowedOriginIsRejected(t *testing.T) {
	env := startServer(t, nil)

	_, status, err := testhelpers.DialWebSocket(env.wsURL, "http://evil.example")
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, status)

	_, status, err = testhelpers.DialWebSocket(env.wsURL, "")
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 0, env.srv.Hub().Len())
}

func TestRateLimitedEventsAreDropped(t *testing.T) {
	env := startServer(t, func(cfg *server.Config) {
		cfg.Burst = 2
		cfg.RefillInterval = time.Hour
	})
	p := env.connect(t)

	p.join(t, "alice", "lobby")
	p.send(t, `{"room":"lobby","sender":"alice","type":"text","text":"one"}`)
	p.send(t, `{"room":"lobby","sender":"alice","type":"text","text":"two"}`)

	p.events.NextStatus(t)
	p.events.NextMessage(t)
	p.events.ExpectNone(t, quietPeriod)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	env := startServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 128
	})
	watcher := env.connect(t)
	p := env.connect(t)

	watcher.join(t, "wendy", "lobby")
	watcher.events.NextStatus(t)
	p.join(t, "alice", "lobby")
	p.events.NextStatus(t)
	watcher.events.NextStatus(t)

	big := fmt.Sprintf(`{"room":"lobby","text":%q}`, bytes.Repeat([]byte("x"), 512))
	p.send(t, big)

	assert.True(t, p.events.WaitClosed())
	assert.Equal(t, "alice has left the room", watcher.events.NextStatus(t))
}

func TestShutdownRemovesEveryMember(t *testing.T) {
	env := startServer(t, nil)
	peers := make([]*peer, 3)
	for i := range peers {
		peers[i] = env.connect(t)
		peers[i].join(t, fmt.Sprintf("user%d", i), "lobby")
	}
	env.waitForClients(t, 3)
	require.Eventually(t, func() bool {
		return len(env.srv.Coordinator().MembersOf("lobby")) == 3
	}, testhelpers.DefaultTimeout, 10*time.Millisecond)

	require.NoError(t, env.srv.Hub().Shutdown(2*time.Second))

	for _, p := range peers {
		assert.True(t, p.events.WaitClosed())
	}
	assert.Empty(t, env.srv.Coordinator().MembersOf("lobby"))
	assert.Equal(t, 0, env.srv.Hub().Len())
}

func TestManyClientsReceiveEveryMessageInOrder(t *testing.T) {
	env := startServer(t, nil)
	const numClients = 5
	const numMessages = 20

	peers := make([]*peer, numClients)
	for i := range peers {
		peers[i] = env.connect(t)
		peers[i].join(t, fmt.Sprintf("user%d", i), "lobby")
		for j := 0; j <= i; j++ {
			peers[j].events.NextStatus(t)
		}
	}

	for i := 0; i < numMessages; i++ {
		peers[0].send(t, fmt.Sprintf(`{"room":"lobby","sender":"user0","type":"text","text":"m%d"}`, i))
	}

	for _, p := range peers {
		for i := 0; i < numMessages; i++ {
			msg, err := relay.ParseMessage(p.events.NextMessage(t))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("m%d", i), msg.Text)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := server.NewConfig()
	cfg.Port = "127.0.0.1:0"
	cfg.UploadDir = t.TempDir()
	cfg.ShutdownTimeout = time.Second

	srv, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, srv.Hub().Len())
}

func TestRunReportsListenError(t *testing.T) {
	cfg := server.NewConfig()
	cfg.Port = "127.0.0.1:notaport"
	cfg.UploadDir = t.TempDir()
	cfg.ShutdownTimeout = time.Second

	srv, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	err = srv.Run(context.Background())
	assert.Error(t, err)
}
