// Package audio provides the bounded ingestion channel that carries
// inbound audio from the gateway to a recognition stream.
package audio

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrIngestClosed is returned by Push after Close.
var ErrIngestClosed = errors.New("audio: ingest channel closed")

// DefaultIngestCapacity is the chunk buffer size used when the caller does
// not specify one.
const DefaultIngestCapacity = 256

// IngestChannel is a bounded queue of audio chunks with a drop-oldest
// overflow policy. Recognition is a real-time pipeline: when the consumer
// falls behind, losing the oldest audio degrades the transcript less than
// stalling the producer or growing without bound.
//
// Safe for concurrent use by one producer and one consumer.
type IngestChannel struct {
	ch chan []byte

	mu     sync.Mutex
	closed bool

	dropped atomic.Int64
}

// NewIngestChannel creates a channel holding up to capacity chunks.
// Non-positive capacity selects [DefaultIngestCapacity].
func NewIngestChannel(capacity int) *IngestChannel {
	if capacity <= 0 {
		capacity = DefaultIngestCapacity
	}
	return &IngestChannel{ch: make(chan []byte, capacity)}
}

// Push enqueues one chunk. When the buffer is full the oldest chunk is
// discarded to make room and the drop counter advances.
func (c *IngestChannel) Push(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrIngestClosed
	}
	for {
		select {
		case c.ch <- chunk:
			return nil
		default:
		}
		select {
		case <-c.ch:
			c.dropped.Add(1)
		default:
		}
	}
}

// Close marks the channel closed and closes the consumer side so the
// recognition backend can flush. Idempotent.
func (c *IngestChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.ch)
	return nil
}

// Chunks is the consumer side. It is closed by Close after the last
// buffered chunk drains.
func (c *IngestChannel) Chunks() <-chan []byte {
	return c.ch
}

// Dropped reports how many chunks the overflow policy discarded.
func (c *IngestChannel) Dropped() int64 {
	return c.dropped.Load()
}
