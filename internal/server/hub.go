// Package server coordinates client registration, frame delivery, and
// connection cleanup for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/relay"
)

// Membership is the room bookkeeping the hub reports connection lifecycle to.
type Membership interface {
	OnConnect(id string)
	OnJoin(id string, req relay.JoinRequest) error
	OnLeave(id string) error
	Relay(msg relay.Message) error
}

// Hub owns every live WebSocket client. It turns upgrades and read-loop exits
// into connect and disconnect notifications and delivers frames to clients
// by connection id.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	membership Membership
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewHub creates a Hub. The membership must be attached with
// AttachMembership before Run is called.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger,
		metrics:    m,
	}
}

// AttachMembership sets the component notified of connects and disconnects
// and receiving inbound events.
func (h *Hub) AttachMembership(m Membership) {
	h.membership = m
}

func newClientID() string {
	return uuid.NewString()
}

// Deliver queues frame for the client with the given id without blocking.
// A client whose queue is full is disconnected.
func (h *Hub) Deliver(id string, frame []byte) error {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, exists := h.clients[id]
	if !exists || client.closed {
		return ErrClientGone
	}

	select {
	case client.send <- frame:
		return nil
	default:
		client.drop("send buffer full")
		return ErrSendBufferFull
	}
}

// Register hands a freshly upgraded client to the hub. It reports false if
// the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Len returns the number of attached clients.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.membership.OnConnect(client.id)
	h.metrics.SetConnections(clientCount)
	h.log.Info("client registered", "conn", client.id, "remote", client.addr, "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// removeClient detaches client and runs the disconnect transition. It is
// safe to call more than once for the same client.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)

	if err := h.membership.OnLeave(client.id); err != nil {
		h.log.Error("disconnect cleanup failed", "conn", client.id, "err", err)
	}
	h.metrics.SetConnections(clientCount)
	h.log.Info("client unregistered", "conn", client.id, "remote", client.addr, "clients", clientCount)
}

// leave is called by a client's read loop when its connection ends.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.removeClient(client)
	}
}

// shutdownClients closes every client connection; each read loop then
// unregisters its client.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	h.mutex.RLock()
	clients := lo.Values(h.clients)
	h.mutex.RUnlock()

	for _, client := range clients {
		client.drop("server shutting down")
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
