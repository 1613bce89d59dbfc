// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pdiddy/deep-research/internal/progress"
)

// SSE event types written by SSESink.
const (
	EventBlock       = "block"
	EventStreamOpen  = "stream_open"
	EventStreamChunk = "stream_chunk"
	EventStreamClose = "stream_close"
	EventComplete    = "complete"
	EventError       = "error"
)

// SSESink writes progress as Server-Sent Events. Each event carries a
// sequence id, an event type, and a JSON progress.Event as data.
type SSESink struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	seq     uint64
}

// NewSSESink returns a sink writing to w. When w is an http.Flusher every
// event is flushed immediately.
func NewSSESink(w io.Writer) *SSESink {
	f, _ := w.(http.Flusher)
	return &SSESink{w: w, flusher: f}
}

func (s *SSESink) send(ctx context.Context, typ string, ev progress.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", typ, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, typ, data); err != nil {
		return fmt.Errorf("writing %s event: %w", typ, err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// comment writes an SSE comment line, used for the greeting and heartbeats.
func (s *SSESink) comment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, ": %s\n\n", text)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// heartbeat writes a ping comment every interval until done is closed.
func (s *SSESink) heartbeat(interval time.Duration, done <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			s.comment("ping")
		}
	}
}

func (s *SSESink) Block(ctx context.Context, name, content string) error {
	return s.send(ctx, EventBlock, progress.Event{Kind: progress.EventBlock, Name: name, Content: content})
}

func (s *SSESink) OpenStream(ctx context.Context, name string) (progress.Stream, error) {
	if err := s.send(ctx, EventStreamOpen, progress.Event{Kind: progress.EventOpen, Name: name}); err != nil {
		return nil, err
	}
	return &sseStream{sink: s, name: name}, nil
}

func (s *SSESink) Complete(ctx context.Context) error {
	return s.send(ctx, EventComplete, progress.Event{Kind: progress.EventComplete})
}

// Error reports a failed run. It is not part of progress.Sink.
func (s *SSESink) Error(ctx context.Context, err error) error {
	return s.send(ctx, EventError, progress.Event{Kind: EventError, Content: err.Error()})
}

type sseStream struct {
	sink   *SSESink
	name   string
	closed bool
}

func (st *sseStream) Append(ctx context.Context, chunk string) error {
	if st.closed {
		return progress.ErrStreamClosed
	}
	return st.sink.send(ctx, EventStreamChunk, progress.Event{Kind: progress.EventChunk, Name: st.name, Content: chunk})
}

func (st *sseStream) Close(ctx context.Context) error {
	if st.closed {
		return progress.ErrStreamClosed
	}
	st.closed = true
	return st.sink.send(ctx, EventStreamClose, progress.Event{Kind: progress.EventClose, Name: st.name})
}
