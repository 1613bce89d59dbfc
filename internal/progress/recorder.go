// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrStreamClosed is returned when appending to or closing a closed stream.
var ErrStreamClosed = errors.New("progress stream already closed")

// EventKind identifies a recorded progress event.
type EventKind string

const (
	EventBlock    EventKind = "block"
	EventOpen     EventKind = "open"
	EventChunk    EventKind = "chunk"
	EventClose    EventKind = "close"
	EventComplete EventKind = "complete"
)

// Event is one recorded progress event.
type Event struct {
	Kind    EventKind `json:"kind"`
	Name    string    `json:"name,omitempty"`
	Content string    `json:"content,omitempty"`
}

// Recorder is a Sink that keeps every event in order. It can also be used
// as a tee target by hosts that need a transcript.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Block(_ context.Context, name, content string) error {
	r.add(Event{Kind: EventBlock, Name: name, Content: content})
	return nil
}

func (r *Recorder) OpenStream(_ context.Context, name string) (Stream, error) {
	r.add(Event{Kind: EventOpen, Name: name})
	return &recordedStream{rec: r, name: name}, nil
}

func (r *Recorder) Complete(_ context.Context) error {
	r.add(Event{Kind: EventComplete})
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// StreamText returns the concatenated chunks appended to the named stream.
func (r *Recorder) StreamText(name string) string {
	var b strings.Builder
	for _, e := range r.Events() {
		if e.Kind == EventChunk && e.Name == name {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

// Blocks returns the recorded blocks in order.
func (r *Recorder) Blocks() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == EventBlock {
			out = append(out, e)
		}
	}
	return out
}

type recordedStream struct {
	rec    *Recorder
	name   string
	closed bool
}

func (s *recordedStream) Append(_ context.Context, chunk string) error {
	if s.closed {
		return ErrStreamClosed
	}
	s.rec.add(Event{Kind: EventChunk, Name: s.name, Content: chunk})
	return nil
}

func (s *recordedStream) Close(_ context.Context) error {
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	s.rec.add(Event{Kind: EventClose, Name: s.name})
	return nil
}
