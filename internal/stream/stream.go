// Package stream fans audit events out to live subscribers (the admin SSE feed).
package stream

import (
	"context"
	"sync"

	"sportai.io/internal/audit"
)

const bufferSize = 16

// Stream fan-outs audit entries to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan audit.Entry
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan audit.Entry)}
}

// Subscribe registers a subscriber and returns a channel which will receive entries.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan audit.Entry {
	ch := make(chan audit.Entry, bufferSize)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Subscribers reports how many subscribers are attached.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish fan-outs e to all subscribers.
func (s *Stream) Publish(e audit.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// slow subscriber; drop
		}
	}
}

// Append implements audit.Sink so the stream can be registered with audit.WithMirror.
func (s *Stream) Append(_ context.Context, e audit.Entry) error {
	s.Publish(e)
	return nil
}
