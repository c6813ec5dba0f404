package audio

import "encoding/binary"

// Int16ToBytes converts int16 samples to an s16le byte slice.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Int16ToBytesInto writes s16le bytes into dst, avoiding allocation.
// dst must have capacity >= len(samples)*2. Returns the used portion.
func Int16ToBytesInto(samples []int16, dst []byte) []byte {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return dst[:len(samples)*2]
}

// BytesToInt16 converts an s16le byte slice to int16 samples.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// BytesToInt16Into writes samples into dst, avoiding allocation.
// dst must have capacity >= len(data)/2. Returns the used portion.
func BytesToInt16Into(data []byte, dst []int16) []int16 {
	n := len(data) / 2
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return dst[:n]
}
