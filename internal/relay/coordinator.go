package relay

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Coordinator is the only writer of the Registry and the RoomIndex. Each
// public operation leaves every registered connection in at most one room
// and every room member registered with that room.
type Coordinator struct {
	sessions *Registry
	rooms    *RoomIndex
	router   *Router
	validate *validator.Validate
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewCoordinator wires a Coordinator over the given components. m may be nil.
func NewCoordinator(sessions *Registry, rooms *RoomIndex, router *Router, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		sessions: sessions,
		rooms:    rooms,
		router:   router,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger,
		metrics:  m,
	}
}

// OnConnect registers a new connection with no identity and no room.
func (c *Coordinator) OnConnect(id string) {
	c.sessions.Register(id)
	c.log.Debug("connection registered", "conn", id)
}

// OnJoin places the connection in req.Room under req.Username. A connection
// already in a room leaves it first, and the old room is told before the new
// one. Both rooms stay locked for the whole switch.
func (c *Coordinator) OnJoin(id string, req JoinRequest) error {
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJoinRequest, err)
	}

	for {
		prev, ok := c.sessions.Lookup(id)
		if !ok {
			return fmt.Errorf("join %s: %w", id, ErrUnknownConnection)
		}

		unlock := c.rooms.Lock(prev.Room, req.Room)
		cur, ok := c.sessions.Lookup(id)
		if !ok {
			unlock()
			return fmt.Errorf("join %s: %w", id, ErrUnknownConnection)
		}
		if cur.Room != prev.Room {
			unlock()
			continue
		}

		err := c.switchRoom(cur, req)
		unlock()
		return err
	}
}

func (c *Coordinator) switchRoom(cur Session, req JoinRequest) error {
	if cur.InRoom() {
		c.removeMember(cur.Room, cur.ID)
		c.router.Notify(cur.Room, EventStatus, leftNotice(cur.DisplayName))
		c.log.Info("left room", "conn", cur.ID, "user", cur.DisplayName, "room", cur.Room)
	}

	if err := c.sessions.SetIdentity(cur.ID, req.Username, req.Room); err != nil {
		return err
	}
	if c.rooms.AddMember(req.Room, cur.ID) {
		c.metrics.RoomOpened()
	}

	c.router.Notify(req.Room, EventStatus, joinedNotice(req.Username))
	c.log.Info("joined room", "conn", cur.ID, "user", req.Username, "room", req.Room)
	return nil
}

// OnLeave unregisters a disconnected connection and, if it was in a room,
// removes it and tells the remaining members. The room is held from before
// unregistration until the notice is queued.
func (c *Coordinator) OnLeave(id string) error {
	prev, ok := c.sessions.Lookup(id)
	if !ok {
		return fmt.Errorf("leave %s: %w", id, ErrUnknownConnection)
	}

	unlock := c.rooms.Lock(prev.Room)
	removed, ok := c.sessions.Unregister(id)
	if !ok {
		unlock()
		return fmt.Errorf("leave %s: %w", id, ErrUnknownConnection)
	}
	if removed.Room != prev.Room {
		unlock()
		unlock = c.rooms.Lock(removed.Room)
	}
	defer unlock()

	c.log.Debug("connection unregistered", "conn", id)
	if !removed.InRoom() {
		return nil
	}

	c.removeMember(removed.Room, id)
	c.router.Notify(removed.Room, EventStatus, leftNotice(removed.DisplayName))
	c.log.Info("left room", "conn", id, "user", removed.DisplayName, "room", removed.Room)
	return nil
}

func (c *Coordinator) removeMember(room, id string) {
	if _, deleted := c.rooms.RemoveMember(room, id); deleted {
		c.metrics.RoomClosed()
	}
}

// Relay forwards a chat message through the router.
func (c *Coordinator) Relay(msg Message) error {
	_, err := c.router.Relay(msg)
	return err
}

// Lookup exposes the registry entry for id.
func (c *Coordinator) Lookup(id string) (Session, bool) {
	return c.sessions.Lookup(id)
}

// MembersOf exposes the current members of room.
func (c *Coordinator) MembersOf(room string) []string {
	return c.rooms.MembersOf(room)
}
