// Package ringbuffer provides the playout buffer between the Opus
// decode loop and the playback device.
package ringbuffer

import "sync"

// BytesPerSecond is the byte rate of PCM s16le, 48kHz, mono audio.
const BytesPerSecond = 48000 * 2

// Buffer is a fixed-capacity FIFO of PCM bytes. The decode loop writes,
// the device callback reads; it is safe for one writer and one reader.
// When the writer outruns the reader the oldest audio is dropped so
// playback stays near live instead of drifting behind.
type Buffer struct {
	mu    sync.Mutex
	buf   []byte
	start int
	size  int
}

// New creates a buffer holding up to the given number of seconds of
// audio.
func New(seconds int) *Buffer {
	return &Buffer{buf: make([]byte, seconds*BytesPerSecond)}
}

// Write appends PCM data, dropping the oldest audio if the buffer is
// full. It returns the number of bytes dropped.
func (b *Buffer) Write(data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.buf)
	if len(data) > capacity {
		// Only the tail can ever be played; the rest is already stale.
		data = data[len(data)-capacity:]
	}

	dropped := b.size + len(data) - capacity
	if dropped > 0 {
		b.start = (b.start + dropped) % capacity
		b.size -= dropped
	} else {
		dropped = 0
	}

	pos := (b.start + b.size) % capacity
	n := copy(b.buf[pos:], data)
	copy(b.buf, data[n:])
	b.size += len(data)

	return dropped
}

// Read fills dst with the oldest buffered audio and consumes it. It
// returns the number of bytes read; the caller fills the remainder of
// dst with silence when the buffer runs dry.
func (b *Buffer) Read(dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(dst)
	if n > b.size {
		n = b.size
	}
	if n == 0 {
		return 0
	}

	first := copy(dst[:n], b.buf[b.start:])
	copy(dst[first:n], b.buf)

	b.start = (b.start + n) % len(b.buf)
	b.size -= n
	return n
}

// Buffered returns the number of bytes waiting to be played.
func (b *Buffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Reset discards all buffered audio.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.size = 0
}
