package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/crowdzone/internal/geofence"
)

// errHubStopped is returned to readers when the hub shuts down.
var errHubStopped = errors.New("hub stopped")

// Hub owns the tracker and serializes every operation on it. Registration,
// inbound messages and disconnects all run on the Run goroutine, so each
// mutate, recount and broadcast sequence completes before the next begins.
type Hub struct {
	tracker    *geofence.Tracker
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	logger     *slog.Logger
	metrics    *Metrics
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub around tracker. metrics may be nil.
func NewHub(tracker *geofence.Tracker, metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		tracker:    tracker,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundMessage),
		logger:     logger,
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
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
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.inbound:
			msg.result <- h.handleInbound(msg)
		}
	}
}

// registerClient hands a new connection to the hub. It returns false if the
// hub has stopped.
func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// dispatch hands one frame to the hub and waits until it has been applied,
// including the broadcast it caused.
func (h *Hub) dispatch(client *Client, data []byte) error {
	msg := inboundMessage{client: client, data: data, result: make(chan error, 1)}
	select {
	case h.inbound <- msg:
	case <-h.ctx.Done():
		return errHubStopped
	}
	select {
	case err := <-msg.result:
		return err
	case <-h.ctx.Done():
		return errHubStopped
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.logger.Warn("received nil client registration; skipping")
		return
	}

	h.clients[client] = struct{}{}
	id := h.tracker.Connect(client)
	if h.metrics != nil {
		h.metrics.connections.Inc()
	}
	h.logger.Debug("client registered", "addr", client.addr, "session", id, "clients", len(h.clients))

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

func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.close()
	h.tracker.Disconnect(client)
	h.logger.Debug("client unregistered", "addr", client.addr, "clients", len(h.clients))
}

func (h *Hub) handleInbound(msg inboundMessage) error {
	if _, ok := h.clients[msg.client]; !ok {
		return geofence.ErrConnClosed
	}
	_, err := h.tracker.HandleMessage(msg.client, msg.data)
	if err != nil && h.metrics != nil && errors.Is(err, geofence.ErrMalformedMessage) {
		h.metrics.malformed.Inc()
	}
	return err
}

// shutdownClients closes every connection and drops its session. No final
// broadcast is sent because every recipient is going away.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections", "clients", len(h.clients))

	for client := range h.clients {
		client.close()
		h.tracker.Release(client)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.logger.Warn("error closing client connection", "addr", client.addr, "err", err)
			}
		}
		delete(h.clients, client)
	}
}

// Shutdown stops the hub and waits for all client goroutines to finish or
// for the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
