// Package server coordinates client registration, inbound event processing,
// room broadcasts and connection cleanup through the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/lanchat/internal/presence"
)

// inbound pairs a decoded envelope with the client that sent it.
type inbound struct {
	client *Client
	env    Envelope
}

// Hub owns every live WebSocket client. All registry mutations and the
// broadcasts they trigger happen on the Run goroutine, one event at a time,
// so every client observes broadcasts in the same order.
type Hub struct {
	log        *slog.Logger
	registry   *presence.Registry
	session    *Session
	metrics    *Metrics
	clients    map[presence.ConnectionID]*Client
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub with an empty registry. Call Run before registering clients.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		log:        log,
		registry:   presence.NewRegistry(),
		clients:    make(map[presence.ConnectionID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.session = NewSession(log, NewRouter(log, h.registry, roomBroadcaster{h}))
	h.metrics = NewMetrics(h)
	return h
}

// Registry exposes the presence registry for read-only inspection.
func (h *Hub) Registry() *presence.Registry { return h.registry }

// Metrics returns the hub's Prometheus collectors.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// ClientCount returns the number of open transports, joined or not.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Register hands a freshly upgraded client to the hub. It returns false once
// the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) dispatch(client *Client, env Envelope) {
	select {
	case h.inbound <- inbound{client: client, env: env}:
	case <-h.done:
	}
}

// Run starts the hub's event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("hub.nil_client")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case in := <-h.inbound:
			h.mutex.RLock()
			_, ok := h.clients[in.client.id]
			h.mutex.RUnlock()
			if !ok {
				continue
			}
			h.metrics.inbound.WithLabelValues(in.env.Event).Inc()
			h.session.Handle(in.client.id, in.env)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	count := len(h.clients)
	h.mutex.Unlock()

	h.log.Info("hub.client_registered", "conn_id", client.id, "addr", client.addr, "count", count)
	h.session.Connect(client.id, client.addr)

	if client.conn == nil {
		return
	}
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

// removeClient drops the transport and runs the disconnect path. The
// disconnect path runs even when the send buffer was already closed.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if current, ok := h.clients[client.id]; !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	alreadyClosed := client.closed
	client.closed = true
	count := len(h.clients)
	h.mutex.Unlock()

	if !alreadyClosed {
		close(client.send)
	}
	h.log.Info("hub.client_unregistered", "conn_id", client.id, "addr", client.addr, "count", count)
	h.session.Disconnect(client.id)
}

// roomBroadcaster is the router's view of the hub. The router only calls it
// from inside Run, via the session.
type roomBroadcaster struct{ h *Hub }

func (b roomBroadcaster) Broadcast(room presence.RoomID, evt Event) { b.h.broadcast(room, evt) }

// broadcast enqueues evt on every member of room. A member whose buffer is
// full is cut off; its own disconnect follows through the normal path.
// It must run on the Run goroutine.
func (h *Hub) broadcast(room presence.RoomID, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("hub.encode_failed", "event", evt.Name, "err", err)
		return
	}

	members := h.registry.Members(room)
	h.metrics.broadcasts.WithLabelValues(evt.Name).Inc()
	h.log.Debug("hub.broadcast", "event", evt.Name, "room", room, "targets", len(members))

	var slow []*Client
	h.mutex.RLock()
	for _, id := range members {
		client, ok := h.clients[id]
		if !ok || client.closed {
			continue
		}
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	h.cutOff(slow)
}

func (h *Hub) cutOff(clients []*Client) {
	if len(clients) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clients {
		if client.closed {
			continue
		}
		client.closed = true
		channelsToClose = append(channelsToClose, client.send)
		h.log.Warn("hub.client_cut_off", "conn_id", client.id, "addr", client.addr, "reason", "send buffer full")
	}
	h.mutex.Unlock()

	h.metrics.dropped.Add(float64(len(channelsToClose)))
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes every transport so the pumps unwind.
func (h *Hub) shutdownClients() {
	h.log.Info("hub.shutdown_clients")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
		if !client.closed {
			client.closed = true
			close(client.send)
		}
	}
	h.clients = make(map[presence.ConnectionID]*Client)
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("hub.close_failed", "conn_id", client.id, "err", err)
		}
	}
	h.log.Info("hub.clients_closed", "count", len(clients))
}

// Shutdown stops the loop and waits for it and the client goroutines, up to
// timeout. A hub whose Run never started times out.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("hub.shutdown_start")
	h.cancel()
	deadline := time.After(timeout)

	select {
	case <-h.done:
	case <-deadline:
		h.log.Warn("hub.shutdown_timeout", "waiting_for", "run")
		return context.DeadlineExceeded
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub.shutdown_complete")
		return nil
	case <-deadline:
		h.log.Warn("hub.shutdown_timeout", "waiting_for", "clients")
		return context.DeadlineExceeded
	}
}
