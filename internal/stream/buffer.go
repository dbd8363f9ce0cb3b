package stream

import "sync"

// DefaultFlushInterval is the cadence at which the session drains the
// buffer: one batched update per frame at 60 Hz, however fast the
// underlying process writes.
const DefaultFlushInterval = 16 // milliseconds

// Buffer batches chunks between flush ticks. It is the single
// synchronization point between the PTY reader (producer) and the flush
// tick (consumer); both sides may call concurrently.
type Buffer struct {
	mu        sync.Mutex
	buffering bool
	queue     []Chunk
}

// NewBuffer returns an inactive Buffer; chunks pass through until
// Start is called.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Start begins accumulating chunks instead of passing them through.
func (b *Buffer) Start() {
	b.mu.Lock()
	b.buffering = true
	b.mu.Unlock()
}

// Stop disables buffering and discards anything not yet flushed.
func (b *Buffer) Stop() {
	b.mu.Lock()
	b.buffering = false
	b.queue = nil
	b.mu.Unlock()
}

// Active reports whether the buffer is accumulating.
func (b *Buffer) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buffering
}

// Add queues chunks when buffering, or returns them unchanged for
// immediate delivery when not.
func (b *Buffer) Add(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.buffering {
		return chunks
	}

	b.queue = append(b.queue, chunks...)

	return nil
}

// Flush drains and returns everything accumulated since the last flush,
// in arrival order.
func (b *Buffer) Flush() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.queue
	b.queue = nil

	return drained
}

// Pending returns the number of queued chunks.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queue)
}
