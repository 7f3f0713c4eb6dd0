package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is one security-relevant occurrence: a login outcome, a token
// rotation, a lockout, a 2FA state change. Raw credentials never appear
// in an Event; Detail carries only non-secret context.
type Event struct {
	At        time.Time         `json:"at"`
	Name      string            `json:"event"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Origin    string            `json:"origin,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Sink receives dispatched events. Implementations must be safe for
// concurrent use; they are called from the dispatcher goroutine.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events into a buffered channel, for hosts that
// drain audit events into their own pipeline.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONLinesSink writes one JSON object per line to w.
type JSONLinesSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{writer: w}
}

func (s *JSONLinesSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
