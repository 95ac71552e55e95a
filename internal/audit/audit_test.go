package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) { <-s.gate }

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("boom") }

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	d.Emit(context.Background(), Event{Type: "login_failure", CorrelationID: "c1"})
	d.Emit(context.Background(), Event{Type: "login_success", CorrelationID: "c1"})
	d.Close()

	first := <-sink.Events()
	second := <-sink.Events()
	if first.Type != "login_failure" || second.Type != "login_success" {
		t.Fatalf("unexpected order %q, %q", first.Type, second.Type)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Type: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherRecoversSinkPanic(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2, Logger: zap.New(core)}, panicSink{})

	d.Emit(context.Background(), Event{Type: "login_success", CorrelationID: "c9"})
	d.Close()

	if d.Failed() != 1 {
		t.Fatalf("expected one failed delivery, got %d", d.Failed())
	}
	if logs.FilterMessage("audit sink panicked").Len() != 1 {
		t.Fatal("expected panic to be logged")
	}
}

func TestDisabledDispatcherIsNilSafe(t *testing.T) {
	d := NewDispatcher(Config{}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{
		Timestamp:     time.Unix(0, 0).UTC(),
		Type:          "refresh_reuse_detected",
		Outcome:       OutcomeFailure,
		CorrelationID: "c2",
		UserID:        "u1",
	})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json line %q: %v", line, err)
	}
	if decoded["type"] != "refresh_reuse_detected" || decoded["correlation_id"] != "c2" {
		t.Fatalf("unexpected payload %v", decoded)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewZapSink(zap.New(core))

	s.Emit(context.Background(), Event{Type: "login_success", Outcome: OutcomeSuccess, UserID: "u1"})
	s.Emit(context.Background(), Event{Type: "login_failure", Outcome: OutcomeFailure, Error: "invalid_credentials"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[1].ContextMap()["error"] != "invalid_credentials" {
		t.Fatalf("missing error field: %v", entries[1].ContextMap())
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{Type: "logout_session"})
	if (<-a.Events()).Type != "logout_session" || (<-b.Events()).Type != "logout_session" {
		t.Fatal("expected event on both sinks")
	}
}
