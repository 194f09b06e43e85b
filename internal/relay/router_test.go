package relay_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/relay"
	"github.com/Tyrowin/roomchat/internal/relay/mocks"
)

func newRouter(t *testing.T) (*relay.Router, *relay.RoomIndex, *mocks.MockSender) {
	t.Helper()
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	rooms := relay.NewRoomIndex()
	return relay.NewRouter(rooms, sender, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New()), rooms, sender
}

func TestRouter_NotifyTagsEvent(t *testing.T) {
	router, rooms, sender := newRouter(t)
	rooms.AddMember("lobby", "c1")

	sender.EXPECT().Deliver("c1", gomock.Any()).DoAndReturn(func(_ string, frame []byte) error {
		assert.JSONEq(t, `{"event":"status","data":{"msg":"hello"}}`, string(frame))
		return nil
	})

	unlock := rooms.Lock("lobby")
	n := router.Notify("lobby", relay.EventStatus, relay.StatusNotice{Msg: "hello"})
	unlock()
	assert.Equal(t, 1, n)
}

func TestRouter_NotifyEmptyRoom(t *testing.T) {
	router, _, _ := newRouter(t)
	assert.Equal(t, 0, router.Notify("nowhere", relay.EventStatus, relay.StatusNotice{Msg: "x"}))
}

func TestRouter_RelayIncludesSenderAndSharesFrame(t *testing.T) {
	router, rooms, sender := newRouter(t)
	rooms.AddMember("lobby", "alice")
	rooms.AddMember("lobby", "bob")
	rooms.AddMember("elsewhere", "carol")

	payload := []byte(`{"room":"lobby","sender":"alice","type":"file","name":"a.png","url":"/uploads/x_a.png","size":12,"caption":"look"}`)
	msg, err := relay.ParseMessage(payload)
	require.NoError(t, err)

	var frames [][]byte
	record := func(_ string, frame []byte) error {
		frames = append(frames, frame)
		return nil
	}
	sender.EXPECT().Deliver("alice", gomock.Any()).DoAndReturn(record)
	sender.EXPECT().Deliver("bob", gomock.Any()).DoAndReturn(record)

	n, err := router.Relay(msg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, frames, 2)
	var env relay.Envelope
	require.NoError(t, json.Unmarshal(frames[0], &env))
	assert.Equal(t, relay.EventReceiveMessage, env.Event)
	assert.JSONEq(t, string(payload), string(env.Data))
	assert.Equal(t, frames[0], frames[1])
}

func TestRouter_RelaySwallowsDeliveryErrors(t *testing.T) {
	router, rooms, sender := newRouter(t)
	rooms.AddMember("lobby", "a")
	rooms.AddMember("lobby", "b")

	sender.EXPECT().Deliver("a", gomock.Any()).Return(errors.New("closed"))
	sender.EXPECT().Deliver("b", gomock.Any()).Return(nil)

	msg, err := relay.ParseMessage([]byte(`{"room":"lobby","type":"text","text":"hi"}`))
	require.NoError(t, err)
	n, err := router.Relay(msg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRouter_RelayRequiresRoom(t *testing.T) {
	router, _, _ := newRouter(t)
	_, err := router.Relay(relay.Message{Sender: "alice", Kind: relay.KindText, Text: "hi"})
	assert.ErrorIs(t, err, relay.ErrInvalidMessage)
}
