package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brewloyal/api/internal/auth"
	"github.com/google/uuid"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, room string) *Client {
	return &Client{
		hub:  hub,
		room: room,
		send: make(chan []byte, 256),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		return ev
	case <-time.After(200 * time.Millisecond):
		t.Fatal("client did not receive message")
	}
	return Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.send:
		t.Fatal("client should not have received a message")
	case <-time.After(50 * time.Millisecond):
	}
}

type stubResyncer struct {
	calls []string
	err   error
}

func (s *stubResyncer) Snapshot(ctx context.Context, room string) (Event, error) {
	s.calls = append(s.calls, room)
	if s.err != nil {
		return Event{}, s.err
	}
	return NewEvent(EventSnapshot, map[string]string{"room": room})
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)

	room := OutletRoom(uuid.New())
	client := mockClient(hub, room)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if !hub.rooms[room][client] {
		t.Fatal("client not registered in room")
	}
}

func TestHubUnregistrationCleansEmptyRoom(t *testing.T) {
	hub := startHub(t)

	room := OutletRoom(uuid.New())
	client := mockClient(hub, room)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[room] != nil {
		t.Fatal("room not cleaned up after last client unregistered")
	}
}

func TestBroadcastToRoomIsolation(t *testing.T) {
	hub := startHub(t)

	outlet := mockClient(hub, OutletRoom(uuid.New()))
	other := mockClient(hub, OutletRoom(uuid.New()))
	customer := mockClient(hub, UserRoom(uuid.New()))
	hub.register <- outlet
	hub.register <- other
	hub.register <- customer
	time.Sleep(10 * time.Millisecond)

	payload := json.RawMessage(`{"order_id":"test-123"}`)
	hub.BroadcastToRoom(outlet.room, Event{Type: EventChange, Payload: payload})

	got := receive(t, outlet)
	if got.Type != EventChange {
		t.Errorf("type: got %q, want %q", got.Type, EventChange)
	}
	if string(got.Payload) != string(payload) {
		t.Errorf("payload: got %s, want %s", got.Payload, payload)
	}
	expectNothing(t, other)
	expectNothing(t, customer)
}

func TestBroadcastAll(t *testing.T) {
	hub := startHub(t)

	a := mockClient(hub, OutletRoom(uuid.New()))
	b := mockClient(hub, UserRoom(uuid.New()))
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	ev, err := NewEvent(EventDegraded, map[string]string{"mode": "manual_refresh"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	hub.BroadcastAll(ev)

	for _, c := range []*Client{a, b} {
		if got := receive(t, c); got.Type != EventDegraded {
			t.Errorf("type: got %q, want %q", got.Type, EventDegraded)
		}
	}
}

func TestResyncAllUsesResyncerPerRoom(t *testing.T) {
	hub := NewHub()
	res := &stubResyncer{}
	hub.SetResyncer(res)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	room := OutletRoom(uuid.New())
	a := mockClient(hub, room)
	b := mockClient(hub, room)
	hub.register <- a
	hub.register <- b
	time.Sleep(10 * time.Millisecond)

	hub.ResyncAll(context.Background())

	if len(res.calls) != 1 || res.calls[0] != room {
		t.Fatalf("snapshot calls: got %v, want [%s]", res.calls, room)
	}
	for _, c := range []*Client{a, b} {
		if got := receive(t, c); got.Type != EventSnapshot {
			t.Errorf("type: got %q, want %q", got.Type, EventSnapshot)
		}
	}
}

func TestClientResyncMessageAnswersOnlyThatClient(t *testing.T) {
	hub := NewHub()
	res := &stubResyncer{}
	hub.SetResyncer(res)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	room := UserRoom(uuid.New())
	asker := mockClient(hub, room)
	other := mockClient(hub, room)
	hub.register <- asker
	hub.register <- other
	time.Sleep(10 * time.Millisecond)

	asker.handleMessage([]byte(`{"type":"resync"}`))

	if got := receive(t, asker); got.Type != EventSnapshot {
		t.Errorf("type: got %q, want %q", got.Type, EventSnapshot)
	}
	expectNothing(t, other)

	// Unknown messages are ignored.
	asker.handleMessage([]byte(`{"type":"hello"}`))
	asker.handleMessage([]byte(`not json`))
	if len(res.calls) != 1 {
		t.Errorf("snapshot calls: got %d, want 1", len(res.calls))
	}
}

func TestResyncRoomPropagatesError(t *testing.T) {
	hub := NewHub()
	hub.SetResyncer(&stubResyncer{err: errors.New("db down")})

	if err := hub.ResyncRoom(context.Background(), OutletRoom(uuid.New())); err == nil {
		t.Fatal("expected snapshot error")
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)

	room := OutletRoom(uuid.New())
	slow := &Client{hub: hub, room: room, send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToRoom(room, Event{Type: EventChange, Payload: json.RawMessage(`{}`)})
	time.Sleep(10 * time.Millisecond)

	if _, ok := <-slow.send; ok {
		t.Fatal("expected slow client's channel to be closed")
	}
	if len(hub.Rooms()) != 0 {
		t.Errorf("rooms: got %v, want none", hub.Rooms())
	}
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := mockClient(hub, OutletRoom(uuid.New()))
	hub.register <- c
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-hub.done

	if _, ok := <-c.send; ok {
		t.Fatal("expected client channel closed on shutdown")
	}
	// leave must not block once the hub has stopped.
	hub.leave(c)
}

func TestSendsAfterShutdownReturn(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()
	<-hub.done

	room := OutletRoom(uuid.New())
	finished := make(chan bool)
	go func() {
		// More than the broadcast buffer holds.
		for i := 0; i < 300; i++ {
			hub.BroadcastToRoom(room, Event{Type: EventChange})
			hub.BroadcastAll(Event{Type: EventChime})
		}
		finished <- hub.join(mockClient(hub, room))
	}()

	select {
	case joined := <-finished:
		if joined {
			t.Error("join succeeded on a stopped hub")
		}
	case <-time.After(time.Second):
		t.Fatal("sends blocked after the hub stopped")
	}
}

func TestParseRoom(t *testing.T) {
	id := uuid.New()

	kind, got, err := ParseRoom(OutletRoom(id))
	if err != nil || kind != RoomOutlet || got != id {
		t.Errorf("outlet room: got %s %s %v", kind, got, err)
	}
	kind, got, err = ParseRoom(UserRoom(id))
	if err != nil || kind != RoomUser || got != id {
		t.Errorf("user room: got %s %s %v", kind, got, err)
	}
	for _, bad := range []string{"", "outlet", "table:" + id.String(), "user:not-a-uuid"} {
		if _, _, err := ParseRoom(bad); !errors.Is(err, ErrInvalidRoom) {
			t.Errorf("ParseRoom(%q): got %v, want ErrInvalidRoom", bad, err)
		}
	}
}

func TestAuthorize(t *testing.T) {
	outletID := uuid.New()
	userID := uuid.New()

	tests := []struct {
		name   string
		claims *auth.Claims
		room   string
		want   bool
	}{
		{"staff own outlet", &auth.Claims{Role: "KITCHEN", OutletID: outletID}, OutletRoom(outletID), true},
		{"staff other outlet", &auth.Claims{Role: "CASHIER", OutletID: outletID}, OutletRoom(uuid.New()), false},
		{"owner any outlet", &auth.Claims{Role: "OWNER", OutletID: outletID}, OutletRoom(uuid.New()), true},
		{"customer own room", &auth.Claims{Role: "CUSTOMER", UserID: userID}, UserRoom(userID), true},
		{"customer other room", &auth.Claims{Role: "CUSTOMER", UserID: userID}, UserRoom(uuid.New()), false},
		{"customer outlet room", &auth.Claims{Role: "CUSTOMER", UserID: userID, OutletID: outletID}, OutletRoom(outletID), false},
		{"staff user room", &auth.Claims{Role: "MANAGER", UserID: userID}, UserRoom(userID), false},
		{"nil claims", nil, OutletRoom(outletID), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Authorize(tc.claims, tc.room); got != tc.want {
				t.Errorf("Authorize: got %v, want %v", got, tc.want)
			}
		})
	}
}
