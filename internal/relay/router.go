package relay

import (
	"log/slog"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

//go:generate mockgen -destination=mocks/sender_mock.go -package=mocks . Sender

// Sender hands an encoded frame to the transport for one connection. It must
// not block on network I/O; an error means the frame was not queued.
type Sender interface {
	Deliver(connID string, frame []byte) error
}

// Router fans frames out to the current members of a room.
type Router struct {
	rooms   *RoomIndex
	sender  Sender
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter returns a Router reading membership from rooms and delivering
// through sender. m may be nil.
func NewRouter(rooms *RoomIndex, sender Sender, logger *slog.Logger, m *metrics.Metrics) *Router {
	return &Router{
		rooms:   rooms,
		sender:  sender,
		log:     logger,
		metrics: m,
	}
}

// Notify delivers payload tagged with event to every member of room and
// returns how many deliveries were queued. The caller must hold the room via
// RoomIndex.Lock so that frames for one room keep their commit order.
func (r *Router) Notify(room, event string, payload any) int {
	frame, err := EncodeEnvelope(event, payload)
	if err != nil {
		r.log.Error("encode broadcast", "room", room, "event", event, "err", err)
		return 0
	}
	return r.fanOut(room, event, frame)
}

// Relay broadcasts a chat message verbatim to every member of its room,
// sender included.
func (r *Router) Relay(msg Message) (int, error) {
	if err := msg.Validate(); err != nil {
		return 0, err
	}

	unlock := r.rooms.Lock(msg.Room)
	defer unlock()

	n := r.Notify(msg.Room, EventReceiveMessage, msg)
	r.log.Info("message relayed", "room", msg.Room, "sender", msg.Sender, "type", msg.Kind, "recipients", n)
	return n, nil
}

func (r *Router) fanOut(room, event string, frame []byte) int {
	members := r.rooms.MembersOf(room)
	r.metrics.Broadcast(event)

	delivered := 0
	for _, id := range members {
		if err := r.sender.Deliver(id, frame); err != nil {
			r.metrics.Delivery(metrics.DeliveryFailed)
			r.log.Debug("delivery failed", "room", room, "event", event, "conn", id, "err", err)
			continue
		}
		r.metrics.Delivery(metrics.DeliveryOK)
		delivered++
	}
	return delivered
}
