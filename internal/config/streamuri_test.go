package config

import "testing"

func TestParseStreamURIBasic(t *testing.T) {
	u, err := ParseStreamURI("pipe:///tmp/snapfifo?name=Kitchen&codec=opus&sampleformat=48000:16:2&chunk_ms=40")
	if err != nil {
		t.Fatalf("ParseStreamURI: %v", err)
	}
	if u.Scheme != SchemePipe {
		t.Errorf("expected scheme pipe, got %q", u.Scheme)
	}
	if u.Name != "Kitchen" {
		t.Errorf("expected name Kitchen, got %q", u.Name)
	}
	if u.Codec != "opus" {
		t.Errorf("expected codec opus, got %q", u.Codec)
	}
	if u.SampleFormat != "48000:16:2" {
		t.Errorf("expected sampleformat 48000:16:2, got %q", u.SampleFormat)
	}
	if u.ChunkMs != 40 {
		t.Errorf("expected chunk_ms 40, got %d", u.ChunkMs)
	}
}

func TestParseStreamURIDefaultsChunkMs(t *testing.T) {
	u, err := ParseStreamURI("tcp://localhost:4953?mode=client")
	if err != nil {
		t.Fatalf("ParseStreamURI: %v", err)
	}
	if u.ChunkMs != 20 {
		t.Errorf("expected default chunk_ms 20, got %d", u.ChunkMs)
	}
	if u.ExtraInt("port", 0) != 0 {
		t.Errorf("expected missing port to return fallback")
	}
	if got := u.Extra["mode"]; got != "client" {
		t.Errorf("expected mode=client in Extra, got %q", got)
	}
}

func TestParseStreamURIRejectsUnknownScheme(t *testing.T) {
	if _, err := ParseStreamURI("ftp://example.com/stream"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestParseStreamURIAlsaExtras(t *testing.T) {
	u, err := ParseStreamURI("alsa:///?device=hw:0&send_silence=true&idle_threshold=100")
	if err != nil {
		t.Fatalf("ParseStreamURI: %v", err)
	}
	if !u.ExtraBool("send_silence", false) {
		t.Error("expected send_silence=true")
	}
	if u.ExtraInt("idle_threshold", 0) != 100 {
		t.Errorf("expected idle_threshold 100, got %d", u.ExtraInt("idle_threshold", 0))
	}
}
