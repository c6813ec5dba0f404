package device

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/audio"
)

func TestCutFramesExactMultiples(t *testing.T) {
	m := &Microphone{logger: zap.NewNop(), enabled: true}

	m.pending = make([]int16, audio.FrameSamples*2+100)
	frames := m.cutFrames()

	if len(frames) != 2 {
		t.Fatalf("cut %d frames, want 2", len(frames))
	}
	for i, f := range frames {
		if len(f) != audio.FrameSamples {
			t.Errorf("frame %d has %d samples, want %d", i, len(f), audio.FrameSamples)
		}
	}
	if len(m.pending) != 100 {
		t.Errorf("pending = %d samples, want 100 leftover", len(m.pending))
	}
}

func TestCutFramesCopiesData(t *testing.T) {
	m := &Microphone{logger: zap.NewNop(), enabled: true}

	m.pending = make([]int16, audio.FrameSamples)
	for i := range m.pending {
		m.pending[i] = int16(i)
	}
	frames := m.cutFrames()

	if len(frames) != 1 {
		t.Fatalf("cut %d frames, want 1", len(frames))
	}
	if frames[0][100] != 100 {
		t.Errorf("frame sample 100 = %d, want 100", frames[0][100])
	}
}

func TestSetEnabledDropsPartialFrame(t *testing.T) {
	m := &Microphone{logger: zap.NewNop(), enabled: true}
	m.pending = make([]int16, 500)

	m.SetEnabled(false)
	if len(m.pending) != 0 {
		t.Errorf("pending = %d samples after disable, want 0", len(m.pending))
	}

	m.SetEnabled(true)
	if !m.enabled {
		t.Error("microphone should be enabled again")
	}
}

func TestSpeakerMuteSilencesOutput(t *testing.T) {
	s := NewSpeaker(zap.NewNop())
	s.buf.Write([]byte{1, 2, 3, 4})
	s.SetMuted(true)

	out := []byte{9, 9, 9, 9}
	s.onPlayback(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("byte %d = %d, want silence while muted", i, v)
		}
	}

	// Unmuting resumes from the buffer, padding the tail with silence.
	s.SetMuted(false)
	out = []byte{9, 9, 9, 9, 9, 9}
	s.onPlayback(out)
	want := []byte{1, 2, 3, 4, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("output = %v, want %v", out, want)
		}
	}
}

func TestPooledPacketBufferStagesRTP(t *testing.T) {
	bufs := audio.AcquirePlaybackBuffers()
	defer audio.ReleasePlaybackBuffers(bufs)

	payload := bytes.Repeat([]byte{0xAB}, 160)
	in := rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: 7, Timestamp: 960},
		Payload: payload,
	}
	raw, err := in.Marshal()
	if err != nil {
		t.Fatalf("marshal rtp packet: %v", err)
	}
	if len(raw) > len(bufs.Packet) {
		t.Fatalf("packet buffer holds %d bytes, packet is %d", len(bufs.Packet), len(raw))
	}

	n := copy(bufs.Packet, raw)
	var out rtp.Packet
	if err := out.Unmarshal(bufs.Packet[:n]); err != nil {
		t.Fatalf("unmarshal from pooled buffer: %v", err)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Error("payload corrupted through the staging buffer")
	}
	if out.SequenceNumber != 7 || out.PayloadType != 111 {
		t.Errorf("header = seq %d pt %d, want seq 7 pt 111", out.SequenceNumber, out.PayloadType)
	}
}

func TestNopRouter(t *testing.T) {
	var r NopRouter
	if err := r.ForceSpeakerphone(); err != nil {
		t.Errorf("ForceSpeakerphone: %v", err)
	}
	if err := r.SetOutputMuted(true); err != nil {
		t.Errorf("SetOutputMuted: %v", err)
	}
	if err := r.Restore(); err != nil {
		t.Errorf("Restore: %v", err)
	}
}
