// Package events defines the outgoing event protocol (transcription,
// error, system_status) and the bounded FIFO channel that carries them to
// the transport layer, per SPEC_FULL.md §4.6 and §6.
package events

import (
	"context"
	"encoding/json"
)

// Event is anything that can be placed on the Channel; its Kind determines
// the wire "type" discriminator.
type Event interface {
	Kind() string
}

// TranscriptionEvent is a non-final or final recognition result.
type TranscriptionEvent struct {
	Text      string   `json:"text"`
	SpeakerID string   `json:"speaker_id"`
	StartTime float64  `json:"start_time"`
	EndTime   float64  `json:"end_time"`
	IsFinal   bool     `json:"isFinal"`
	Timestamp [][2]int `json:"timestamp"`
}

// Kind implements Event.
func (TranscriptionEvent) Kind() string { return "transcription" }

// ErrorEvent surfaces a user-visible failure.
type ErrorEvent struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Kind implements Event.
func (ErrorEvent) Kind() string { return "error" }

// SystemStatusEvent reports component readiness.
type SystemStatusEvent struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
}

// Kind implements Event.
func (SystemStatusEvent) Kind() string { return "system_status" }

// Marshal serialises e as a flat JSON object with a "type" discriminator
// field, matching the wire protocol in SPEC_FULL.md §6.
func Marshal(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typeField, err := json.Marshal(e.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeField
	return json.Marshal(fields)
}

// Channel is a bounded FIFO of outgoing events. Put blocks the producer
// (the AudioProcessor) when full, applying backpressure to the VAD
// pipeline rather than dropping events.
type Channel struct {
	ch chan Event
}

// NewChannel creates a channel with the given capacity.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Channel{ch: make(chan Event, capacity)}
}

// Put enqueues an event, blocking if the channel is full.
func (c *Channel) Put(e Event) {
	c.ch <- e
}

// Next blocks until an event is available, or the channel is closed, in
// which case ok is false.
func (c *Channel) Next() (Event, bool) {
	e, ok := <-c.ch
	return e, ok
}

// Wait blocks until an event is available, the channel closes (ok=false),
// or ctx is cancelled (ok=false), whichever comes first. Lets a draining
// goroutine (e.g. the WebSocket writer loop) respect connection shutdown
// without leaking on a channel that may never receive another event.
func (c *Channel) Wait(ctx context.Context) (Event, bool) {
	select {
	case e, ok := <-c.ch:
		return e, ok
	case <-ctx.Done():
		return nil, false
	}
}

// TryPut attempts a non-blocking enqueue, returning false if the channel
// is currently full.
func (c *Channel) TryPut(e Event) bool {
	select {
	case c.ch <- e:
		return true
	default:
		return false
	}
}

// Close shuts down the channel; subsequent Put calls will panic, matching
// the usual Go channel-close contract. Call only from the producer side.
func (c *Channel) Close() {
	close(c.ch)
}

// Len reports the number of currently queued events.
func (c *Channel) Len() int {
	return len(c.ch)
}
