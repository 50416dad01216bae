package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relaycast/relaycast/internal/config"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

func TestNewDispatchesMP3ExtensionToMP3Decoder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(path, []byte("not actually mp3 data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	uri, err := config.ParseStreamURI("file://" + path + "?name=test")
	if err != nil {
		t.Fatalf("ParseStreamURI: %v", err)
	}

	clock := wire.NewSteadyClock()
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	_, err = New(clock, uri, format)
	if err == nil {
		t.Fatal("expected an error decoding invalid mp3 data")
	}
	if !strings.Contains(err.Error(), "decode mp3") {
		t.Fatalf("expected a .mp3 path uri to be routed through the mp3 decoder, got error: %v", err)
	}
}
