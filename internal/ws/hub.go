package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Event types pushed to clients.
const (
	EventChange   = "change"
	EventSnapshot = "snapshot"
	EventDegraded = "feed.degraded"
	EventRestored = "feed.restored"
	EventChime    = "kitchen.chime"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event.
func NewEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// Resyncer builds the full current state of a room. Both the feed's
// reconnect path and a client's "resync" message go through it.
type Resyncer interface {
	Snapshot(ctx context.Context, room string) (Event, error)
}

// roomEvent routes an event to one room, or to every room when Room is
// empty.
type roomEvent struct {
	Room  string
	Event Event
}

// clientEvent routes an event to a single client.
type clientEvent struct {
	Client *Client
	Event  Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by room
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	broadcast chan *roomEvent
	unicast   chan *clientEvent

	resyncer Resyncer

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, 256),
		unicast:    make(chan *clientEvent, 64),
		done:       make(chan struct{}),
	}
}

// SetResyncer installs the snapshot source. Call before Run.
func (h *Hub) SetResyncer(r Resyncer) {
	h.resyncer = r
}

// Run starts the hub's main loop and returns when ctx is done, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for room, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				log.Printf("ERROR: marshal ws event %s: %v", event.Event.Type, err)
				continue
			}

			h.mu.Lock()
			if event.Room == "" {
				for _, clients := range h.rooms {
					for client := range clients {
						h.sendLocked(client, message)
					}
				}
			} else {
				for client := range h.rooms[event.Room] {
					h.sendLocked(client, message)
				}
			}
			h.mu.Unlock()

		case event := <-h.unicast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				log.Printf("ERROR: marshal ws event %s: %v", event.Event.Type, err)
				continue
			}

			h.mu.Lock()
			if h.rooms[event.Client.room][event.Client] {
				h.sendLocked(event.Client, message)
			}
			h.mu.Unlock()
		}
	}
}

// sendLocked delivers message or drops a client whose buffer is full.
func (h *Hub) sendLocked(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.removeLocked(client)
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
}

// BroadcastToRoom sends an event to all clients subscribed to room. It is a
// no-op once the hub has stopped.
func (h *Hub) BroadcastToRoom(room string, event Event) {
	h.publish(&roomEvent{Room: room, Event: event})
}

// BroadcastAll sends an event to every connected client.
func (h *Hub) BroadcastAll(event Event) {
	h.publish(&roomEvent{Event: event})
}

func (h *Hub) publish(ev *roomEvent) {
	select {
	case h.broadcast <- ev:
	case <-h.done:
	}
}

// BroadcastEvent marshals payload and sends it to room.
func (h *Hub) BroadcastEvent(room, eventType string, payload any) {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		log.Printf("ERROR: marshal %s payload: %v", eventType, err)
		return
	}
	h.BroadcastToRoom(room, event)
}

// Rooms lists rooms with at least one client.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// ResyncRoom pushes a fresh snapshot to every client of room.
func (h *Hub) ResyncRoom(ctx context.Context, room string) error {
	if h.resyncer == nil {
		return nil
	}
	event, err := h.resyncer.Snapshot(ctx, room)
	if err != nil {
		return err
	}
	h.BroadcastToRoom(room, event)
	return nil
}

// ResyncAll pushes a fresh snapshot to every occupied room. Used after the
// change feed reconnects, since events may have been missed meanwhile.
func (h *Hub) ResyncAll(ctx context.Context) {
	for _, room := range h.Rooms() {
		if err := h.ResyncRoom(ctx, room); err != nil {
			log.Printf("ERROR: resync room %s: %v", room, err)
		}
	}
}

// resyncClient answers one client's resync request with a snapshot of its
// room.
func (h *Hub) resyncClient(ctx context.Context, c *Client) error {
	if h.resyncer == nil {
		return nil
	}
	event, err := h.resyncer.Snapshot(ctx, c.room)
	if err != nil {
		return err
	}
	select {
	case h.unicast <- &clientEvent{Client: c, Event: event}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// join registers c, reporting false when the hub has already stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c unless the hub has already stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
