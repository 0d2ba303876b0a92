// Package ws implements the realtime fan-out layer: a hub that owns all
// websocket connections and relays presence updates and chat messages to
// every connected client.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/dmitrijs2005/chatkeeper/internal/server/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP API is already open to any origin; the socket follows suit.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientEvent pairs an inbound event with the connection it arrived on so
// the run loop can dispatch without extra bookkeeping.
type clientEvent struct {
	client *Client
	event  Event
}

// Hub coordinates client registration, inbound event dispatch, and
// broadcasting. All state transitions happen on the single Run goroutine;
// the clients map is additionally mutex-guarded because broadcast delivery
// inspects it from helper methods.
type Hub struct {
	registry *presence.Registry
	logger   logging.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan clientEvent
	publish    chan struct{}

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(registry *presence.Registry, logger logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   registry,
		logger:     logger.With("module", "ws"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan clientEvent),
		publish:    make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// HandleUpgrade upgrades the request to a websocket connection and hands it
// to the hub.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(h.ctx, "websocket upgrade failed", "error", err)
		return
	}
	h.register <- newClient(conn, h, r.RemoteAddr)
}

// Run is the hub's event loop. It must run on its own goroutine; it exits
// when Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.events:
			h.dispatch(ev)

		case <-h.publish:
			h.publishUsers()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mutex.Unlock()
	h.logger.Debug(h.ctx, "client connected", "addr", client.addr, "clients", count)

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

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	count := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.logger.Debug(h.ctx, "client disconnected", "addr", client.addr, "clients", count)
}

// dispatch reacts to a single inbound event. Presence mutations and the
// follow-up republish run here, on the loop goroutine, so updates cannot
// interleave.
func (h *Hub) dispatch(ev clientEvent) {
	switch ev.event.Event {
	case EventUserConnected:
		var user models.ConnectedUser
		if err := json.Unmarshal(ev.event.Data, &user); err != nil || user.ID == "" {
			h.logger.Warn(h.ctx, "malformed userConnected payload", "addr", ev.client.addr)
			return
		}
		h.registry.Add(user)
		h.publishUsers()

	case EventUserDisconnected:
		var user models.PublicUser
		if err := json.Unmarshal(ev.event.Data, &user); err != nil || user.ID == "" {
			h.logger.Warn(h.ctx, "malformed userDisconnected payload", "addr", ev.client.addr)
			return
		}
		h.registry.Remove(user.ID)
		h.publishUsers()

	case EventSendMessage:
		// Relayed verbatim to every client, the sender included, so all
		// parties render the message from the same payload.
		payload, err := json.Marshal(Event{Event: EventReceiveMessage, Data: ev.event.Data})
		if err != nil {
			h.logger.Error(h.ctx, "marshaling receiveMessage", "error", err)
			return
		}
		h.broadcast(payload)

	default:
		h.logger.Warn(h.ctx, "unknown event", "event", ev.event.Event, "addr", ev.client.addr)
	}
}

// PublishUsers pushes the current presence list to every client. It is used
// by the HTTP layer after login/logout so socket clients see registry
// changes that did not originate on a socket.
func (h *Hub) PublishUsers() {
	select {
	case h.publish <- struct{}{}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) publishUsers() {
	payload, err := marshalEvent(EventUpdateUsers, h.registry.List())
	if err != nil {
		h.logger.Error(h.ctx, "marshaling updateUsers", "error", err)
		return
	}
	h.broadcast(payload)
}

func (h *Hub) broadcast(payload []byte) {
	var stale []*Client

	h.mutex.RLock()
	for client := range h.clients {
		if client.closed {
			continue
		}
		select {
		case client.send <- payload:
		default:
			stale = append(stale, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range stale {
		h.logger.Warn(h.ctx, "dropping client with full send buffer", "addr", client.addr)
		h.removeClient(client)
	}
}

func (h *Hub) closeAllClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		_ = client.conn.Close()
	}
	h.logger.Info(h.ctx, "closed client connections", "count", len(clients))
}

// Shutdown stops the run loop, closes every connection, and waits for the
// pump goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
