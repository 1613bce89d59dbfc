// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress defines how a research run reports progress to its host.
//
// A host receives named one-shot text blocks and named incremental streams
// (open, append zero or more chunks, close), followed by one completion
// signal. Events arrive strictly in emission order.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"
)

// Sink receives progress from a research run.
type Sink interface {
	Block(ctx context.Context, name, content string) error
	OpenStream(ctx context.Context, name string) (Stream, error)
	Complete(ctx context.Context) error
}

// Stream is an open named text stream.
type Stream interface {
	Append(ctx context.Context, chunk string) error
	Close(ctx context.Context) error
}

// Chunk splits text into consecutive pieces of at most size runes. The
// pieces concatenate to text exactly. Empty text yields no chunks.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = 1
	}
	var out []string
	for len(text) > 0 {
		n, i := 0, 0
		for i < len(text) && n < size {
			_, w := utf8.DecodeRuneInString(text[i:])
			i += w
			n++
		}
		out = append(out, text[:i])
		text = text[i:]
	}
	return out
}

// TextSink writes progress as plain text. Blocks are written as one line,
// stream chunks are written as they arrive. A non-zero Pace sleeps between
// stream chunks.
type TextSink struct {
	mu   sync.Mutex
	w    io.Writer
	Pace time.Duration
}

// NewTextSink returns a sink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) Block(_ context.Context, _ string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s\n\n", content)
	return err
}

func (s *TextSink) OpenStream(_ context.Context, _ string) (Stream, error) {
	return &textStream{sink: s}, nil
}

func (s *TextSink) Complete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w)
	return err
}

type textStream struct {
	sink   *TextSink
	wrote  bool
	closed bool
}

func (st *textStream) Append(ctx context.Context, chunk string) error {
	if st.closed {
		return ErrStreamClosed
	}
	if st.wrote && st.sink.Pace > 0 {
		t := time.NewTimer(st.sink.Pace)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	st.sink.mu.Lock()
	defer st.sink.mu.Unlock()
	st.wrote = true
	_, err := io.WriteString(st.sink.w, chunk)
	return err
}

func (st *textStream) Close(_ context.Context) error {
	if st.closed {
		return ErrStreamClosed
	}
	st.closed = true
	st.sink.mu.Lock()
	defer st.sink.mu.Unlock()
	_, err := fmt.Fprintln(st.sink.w)
	return err
}
