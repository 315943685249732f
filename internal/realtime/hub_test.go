package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventDecision, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventDecision, EventBan},
	}}

	decisionEvent := &Event{Type: EventDecision}
	banEvent := &Event{Type: EventBan}
	scanEvent := &Event{Type: EventScan}

	if !h.shouldSend(client, decisionEvent) {
		t.Error("Should receive decision events")
	}
	if !h.shouldSend(client, banEvent) {
		t.Error("Should receive ban events")
	}
	if h.shouldSend(client, scanEvent) {
		t.Error("Should NOT receive scan events")
	}
}

func TestShouldSend_EmailFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Emails: []string{"watched@example.com"},
	}}

	matching := &Event{
		Type: EventDecision,
		Data: map[string]interface{}{"email": "watched@example.com", "score": 80.0},
	}
	notMatching := &Event{
		Type: EventDecision,
		Data: map[string]interface{}{"email": "other@example.com", "score": 80.0},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on email")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated accounts")
	}
}

func TestShouldSend_FlowFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Flows: []string{"checkout"},
	}}

	matching := &Event{
		Type: EventDecision,
		Data: map[string]interface{}{"flow": "checkout"},
	}
	notMatching := &Event{
		Type: EventDecision,
		Data: map[string]interface{}{"flow": "login"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on flow")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other flows")
	}
}

func TestShouldSend_MinScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinScore: 50.0,
	}}

	high := &Event{
		Type: EventDecision,
		Data: map[string]interface{}{"score": 75.0},
	}
	low := &Event{
		Type: EventDecision,
		Data: map[string]interface{}{"score": 10.0},
	}
	ban := &Event{
		Type: EventBan,
		Data: map[string]interface{}{"email": "x@example.com"},
	}

	if !h.shouldSend(client, high) {
		t.Error("Should receive high-score decision")
	}
	if h.shouldSend(client, low) {
		t.Error("Should NOT receive low-score decision")
	}
	if !h.shouldSend(client, ban) {
		t.Error("MinScore filter should only apply to decisions")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventDecision}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Emails: []string{"watched@example.com"},
	}}

	// Event with non-map data should not crash
	event := &Event{
		Type: EventBan,
		Data: "string data not a map",
	}

	// Email filter skips non-map data (can't extract the account), so event passes through
	if !h.shouldSend(client, event) {
		t.Error("Non-map data should pass through when email filter can't extract the account")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventDecision, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&Event{
		Type:      EventDecision,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"flow": "checkout", "score": 20.0},
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_BroadcastDecision(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Should not panic
	h.BroadcastDecision(map[string]interface{}{
		"flow": "checkout", "email": "user@example.com", "score": 80.0, "decision": "block",
	})
	h.BroadcastBan(map[string]interface{}{
		"email": "user@example.com", "trigger": "device_velocity",
	})
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants ban events
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventBan}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a decision event (should be filtered out)
	h.Broadcast(&Event{Type: EventDecision, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive decision event")
	default:
		// Good - filtered out
	}

	// Send a ban event (should be received)
	h.Broadcast(&Event{Type: EventBan, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive ban event")
	}
}
