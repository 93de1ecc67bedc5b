package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/iits-consulting/workadventure/logging"
	"github.com/iits-consulting/workadventure/logging/sinks"
)

func newMemoryRouter(t *testing.T, cfg logging.Config, clock logging.Clock) (*logging.Router, *sinks.MemorySink) {
	t.Helper()
	memory := sinks.NewMemorySink()
	router, err := logging.NewRouter(clock, cfg, []logging.NamedSink{{Name: "memory", Sink: memory}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router, memory
}

func closeRouter(t *testing.T, router *logging.Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRouterDeliversToSinks(t *testing.T) {
	router, memory := newMemoryRouter(t, logging.Config{}, nil)

	router.Publish(context.Background(), logging.Event{
		Type:     "participantJoined",
		Room:     "lobby",
		Severity: logging.SeverityInfo,
	})
	closeRouter(t, router)

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected one delivered event, got %d", len(events))
	}
	if events[0].Type != "participantJoined" || events[0].Room != "lobby" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].Time.IsZero() {
		t.Fatalf("the router must stamp the event time")
	}
	if stats := router.Stats(); stats.EventsTotal != 1 || stats.DroppedTotal != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	cfg := logging.Config{MinimumSeverity: logging.SeverityWarn}
	router, memory := newMemoryRouter(t, cfg, nil)

	router.Publish(context.Background(), logging.Event{Type: "noisy", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "roomOverCapacity", Severity: logging.SeverityWarn})
	closeRouter(t, router)

	events := memory.Events()
	if len(events) != 1 || events[0].Type != "roomOverCapacity" {
		t.Fatalf("expected only the warning through, got %+v", events)
	}
	if stats := router.Stats(); stats.EventsTotal != 1 {
		t.Fatalf("filtered events must not count as delivered: %+v", stats)
	}
}

func TestRouterStampsConfiguredFields(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cfg := logging.Config{Fields: map[string]any{"service": "session-server"}}
	router, memory := newMemoryRouter(t, cfg, logging.ClockFunc(func() time.Time { return at }))

	router.Publish(context.Background(), logging.Event{Type: "roomCreated", Severity: logging.SeverityInfo})
	closeRouter(t, router)

	events := memory.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if !events[0].Time.Equal(at) {
		t.Fatalf("expected the clock's time, got %v", events[0].Time)
	}
	if events[0].Extra["service"] != "session-server" {
		t.Fatalf("configured fields must reach the sink, got %+v", events[0].Extra)
	}
}

func TestRouterCloseDrainsQueue(t *testing.T) {
	router, memory := newMemoryRouter(t, logging.Config{BufferSize: 256}, nil)

	for i := 0; i < 100; i++ {
		router.Publish(context.Background(), logging.Event{Type: "moved", Severity: logging.SeverityInfo})
	}
	closeRouter(t, router)

	if got := len(memory.Events()); got != 100 {
		t.Fatalf("expected all queued events drained on close, got %d", got)
	}
}

func TestRouterIgnoresUntypedAndPostCloseEvents(t *testing.T) {
	router, memory := newMemoryRouter(t, logging.Config{}, nil)

	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityInfo})
	closeRouter(t, router)
	router.Publish(context.Background(), logging.Event{Type: "late", Severity: logging.SeverityInfo})

	if got := len(memory.Events()); got != 0 {
		t.Fatalf("expected nothing delivered, got %d", got)
	}
	if stats := router.Stats(); stats.EventsTotal != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRouterSinkLookup(t *testing.T) {
	router, memory := newMemoryRouter(t, logging.Config{}, nil)
	defer closeRouter(t, router)

	if router.Sink("memory") != memory {
		t.Fatalf("expected the registered sink back")
	}
	if router.Sink("ndjson") != nil {
		t.Fatalf("expected nil for an unregistered sink")
	}
}
