package capture

import (
	"bytes"
	"sync"
	"time"
)

// Chunk is one timesliced piece of encoded output.
type Chunk struct {
	Seq  int
	Data []byte
	At   time.Time
}

// chunkBuffer receives encoder output and cuts it into chunks on Flush.
// The encoder may write and close it from its own goroutine.
type chunkBuffer struct {
	mu      sync.Mutex
	pending bytes.Buffer
	chunks  []Chunk
	size    int

	closed chan struct{}
	once   sync.Once
}

func newChunkBuffer() *chunkBuffer {
	return &chunkBuffer{closed: make(chan struct{})}
}

func (b *chunkBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Write(p)
}

// Close marks the encoder output as finished.
func (b *chunkBuffer) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *chunkBuffer) Closed() <-chan struct{} { return b.closed }

// Flush turns the bytes written since the previous flush into a chunk.
// Nothing is appended when no bytes arrived.
func (b *chunkBuffer) Flush(at time.Time) (Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending.Len() == 0 {
		return Chunk{}, false
	}
	c := Chunk{
		Seq:  len(b.chunks),
		Data: bytes.Clone(b.pending.Bytes()),
		At:   at,
	}
	b.pending.Reset()
	b.chunks = append(b.chunks, c)
	b.size += len(c.Data)
	return c, true
}

func (b *chunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

func (b *chunkBuffer) Chunks() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Assemble concatenates all flushed chunks in order.
func (b *chunkBuffer) Assemble() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c.Data...)
	}
	return out
}

// Release drops all buffered data.
func (b *chunkBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
	b.pending = bytes.Buffer{}
}
