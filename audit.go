package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one security-relevant occurrence. External failure responses
// are deliberately vague; the audit trail carries the precise reason.
type AuditEvent struct {
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	Subject       string            `json:"subject,omitempty"`
	Username      string            `json:"username,omitempty"`
	TokenID       string            `json:"token_id,omitempty"`
	SourceAddress string            `json:"source_address,omitempty"`
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's dispatcher. Implementations
// must tolerate concurrent calls.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards everything.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink buffers events for consumption by application code. Emit blocks
// when the channel is full until a consumer catches up or the context ends;
// pair it with DropIfFull on the dispatcher if that is not acceptable.
type ChannelSink struct {
	ch chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.ch <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receive side; the sink never closes it.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.ch
}

// JSONWriterSink appends one JSON object per line, typically to a log file.
// Serialization failures are dropped; an audit line is never worth failing a
// request over.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}
