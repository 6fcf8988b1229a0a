package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/gasbugs/AC/internal/config"
	"github.com/gasbugs/AC/internal/events"
)

func newTestHandler(t *testing.T, prefix string) *MQTTHandler {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	h, err := NewMQTTHandler(config.MQTTConfig{
		Enabled:     true,
		Broker:      "tcp://127.0.0.1:1",
		TopicPrefix: prefix,
	}, 28763, bus, nil)
	if err != nil {
		t.Fatalf("NewMQTTHandler: %v", err)
	}
	return h
}

func TestDisabledHandler(t *testing.T) {
	if _, err := NewMQTTHandler(config.MQTTConfig{}, 28763, events.NewEventBus(), nil); err == nil {
		t.Fatal("disabled config accepted")
	}
	if _, err := NewMQTTHandler(config.MQTTConfig{Enabled: true}, 28763, events.NewEventBus(), nil); err == nil {
		t.Fatal("missing broker accepted")
	}
}

func TestTopics(t *testing.T) {
	if got := newTestHandler(t, "acserver/").topic(TopicGame); got != "acserver/game" {
		t.Errorf("topic = %q", got)
	}
	if got := newTestHandler(t, "").topic(TopicLag); got != "lag" {
		t.Errorf("topic without prefix = %q", got)
	}
	for _, et := range []events.EventType{events.EventFrag, events.EventFlag, events.EventGameFinished} {
		if eventTopics[et] != TopicGame {
			t.Errorf("%s published on %q", et, eventTopics[et])
		}
	}
}

func TestBuildMessage(t *testing.T) {
	h := newTestHandler(t, "acserver")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := h.buildMessage(events.EventFrag, events.FragPayload{ActorName: "alice"}, now)

	if msg["event"] != "frag" || msg["timestamp"] != "2024-05-01T12:00:00Z" || msg["port"] != 28763 {
		t.Fatalf("message = %v", msg)
	}
	if p, ok := msg["payload"].(events.FragPayload); !ok || p.ActorName != "alice" {
		t.Errorf("payload = %v", msg["payload"])
	}
}

func TestEventsDroppedWhileDisconnected(t *testing.T) {
	h := newTestHandler(t, "acserver")
	err := h.onEvent(context.Background(), events.Event{Type: events.EventFrag, Payload: events.FragPayload{}})
	if err != nil {
		t.Fatalf("onEvent: %v", err)
	}
}
