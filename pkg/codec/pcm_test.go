package codec

import (
	"testing"

	"github.com/relaycast/relaycast/pkg/audio"
)

func TestPCMRoundTrip(t *testing.T) {
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2}.Normalized()

	var encoded []byte
	enc, err := New("pcm", nil)
	if err != nil {
		t.Fatalf("New(pcm): %v", err)
	}
	if err := enc.Init(format, func(payload []byte, durationMs float64) {
		encoded = payload
		if durationMs <= 0 {
			t.Errorf("expected positive duration, got %v", durationMs)
		}
	}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	header, err := enc.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}

	payload := []byte{0x00, 0x01, 0x02, 0x03}
	if err := enc.Encode(payload); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(encoded) != string(payload) {
		t.Errorf("expected identity encode, got %v", encoded)
	}

	dec := NewPCMDecoder()
	gotFormat, err := dec.SetHeader(header)
	if err != nil {
		t.Fatalf("SetHeader: %v", err)
	}
	if gotFormat != format {
		t.Errorf("expected format %+v, got %+v", format, gotFormat)
	}

	decoded, ok := dec.Decode(encoded)
	if !ok {
		t.Fatal("Decode returned ok=false")
	}
	if string(decoded) != string(payload) {
		t.Errorf("expected decoded %v, got %v", payload, decoded)
	}
}

func TestPCMDecoderRejectsMalformedHeader(t *testing.T) {
	dec := NewPCMDecoder()
	if _, err := dec.SetHeader([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected error for short header")
	}
	bad := make([]byte, 16)
	copy(bad, "XXX\x00")
	if _, err := dec.SetHeader(bad); err == nil {
		t.Fatal("expected error for wrong magic")
	}
}
