package codec

import (
	"testing"

	"github.com/relaycast/relaycast/pkg/audio"
)

func TestNullCodecHasNoHeader(t *testing.T) {
	enc, err := New("null", nil)
	if err != nil {
		t.Fatalf("New(null): %v", err)
	}
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2}.Normalized()
	if err := enc.Init(format, func([]byte, float64) {}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := enc.Header(); err == nil {
		t.Fatal("expected error requesting a header from the null codec")
	}
}

func TestNullCodecPassesThrough(t *testing.T) {
	enc, err := New("null", nil)
	if err != nil {
		t.Fatalf("New(null): %v", err)
	}
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 1}.Normalized()

	var got []byte
	if err := enc.Init(format, func(payload []byte, durationMs float64) {
		got = payload
		if durationMs <= 0 {
			t.Errorf("expected positive duration, got %v", durationMs)
		}
	}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	payload := []byte{0x00, 0x01, 0x02, 0x03}
	if err := enc.Encode(payload); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("expected passthrough payload %v, got %v", payload, got)
	}
}
