package ringbuffer

import (
	"bytes"
	"testing"
)

func fill(n int, v byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = v
	}
	return data
}

func TestWriteThenRead(t *testing.T) {
	b := New(1)
	data := make([]byte, 960)
	for i := range data {
		data[i] = byte(i % 256)
	}

	if dropped := b.Write(data); dropped != 0 {
		t.Fatalf("dropped %d bytes on a fresh buffer", dropped)
	}
	if b.Buffered() != len(data) {
		t.Fatalf("buffered = %d, want %d", b.Buffered(), len(data))
	}

	out := make([]byte, len(data))
	if n := b.Read(out); n != len(data) {
		t.Fatalf("read %d bytes, want %d", n, len(data))
	}
	if !bytes.Equal(out, data) {
		t.Error("read data does not match written data")
	}
	if b.Buffered() != 0 {
		t.Errorf("buffered after drain = %d, want 0", b.Buffered())
	}
}

func TestReadEmpty(t *testing.T) {
	b := New(1)
	out := make([]byte, 64)
	if n := b.Read(out); n != 0 {
		t.Errorf("read %d bytes from empty buffer, want 0", n)
	}
}

func TestPartialRead(t *testing.T) {
	b := New(1)
	b.Write(fill(100, 0xAA))

	out := make([]byte, 60)
	if n := b.Read(out); n != 60 {
		t.Fatalf("read %d, want 60", n)
	}
	if n := b.Read(out); n != 40 {
		t.Fatalf("second read %d, want 40", n)
	}
	for i, v := range out[:40] {
		if v != 0xAA {
			t.Fatalf("byte %d = 0x%02X, want 0xAA", i, v)
		}
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	b := New(1)

	b.Write(fill(BytesPerSecond/2, 0xAA))
	dropped := b.Write(fill(BytesPerSecond, 0xBB))
	if dropped != BytesPerSecond/2 {
		t.Fatalf("dropped = %d, want %d", dropped, BytesPerSecond/2)
	}
	if b.Buffered() != BytesPerSecond {
		t.Fatalf("buffered = %d, want full capacity %d", b.Buffered(), BytesPerSecond)
	}

	out := make([]byte, BytesPerSecond)
	b.Read(out)
	for i, v := range out {
		if v != 0xBB {
			t.Errorf("byte %d = 0x%02X, want 0xBB (oldest audio should be gone)", i, v)
			break
		}
	}
}

func TestWriteLargerThanCapacityKeepsTail(t *testing.T) {
	b := New(1)
	data := make([]byte, BytesPerSecond*2)
	for i := range data {
		data[i] = byte(i % 251)
	}

	b.Write(data)
	if b.Buffered() != BytesPerSecond {
		t.Fatalf("buffered = %d, want %d", b.Buffered(), BytesPerSecond)
	}

	out := make([]byte, BytesPerSecond)
	b.Read(out)
	if !bytes.Equal(out, data[BytesPerSecond:]) {
		t.Error("buffer should hold the tail of an oversized write")
	}
}

func TestWrapAroundPreservesOrder(t *testing.T) {
	b := New(1)

	// Advance the internal cursor past the midpoint, then wrap.
	b.Write(fill(BytesPerSecond*3/4, 0x01))
	b.Read(make([]byte, BytesPerSecond/2))
	b.Write(fill(BytesPerSecond/2, 0x02))

	out := make([]byte, b.Buffered())
	b.Read(out)

	quarter := BytesPerSecond / 4
	for i := 0; i < quarter; i++ {
		if out[i] != 0x01 {
			t.Fatalf("byte %d = 0x%02X, want 0x01", i, out[i])
		}
	}
	for i := quarter; i < len(out); i++ {
		if out[i] != 0x02 {
			t.Fatalf("byte %d = 0x%02X, want 0x02", i, out[i])
		}
	}
}

func TestReset(t *testing.T) {
	b := New(1)
	b.Write(fill(1000, 0xCC))
	b.Reset()
	if b.Buffered() != 0 {
		t.Errorf("buffered after reset = %d, want 0", b.Buffered())
	}
	if n := b.Read(make([]byte, 10)); n != 0 {
		t.Errorf("read %d bytes after reset, want 0", n)
	}
}
