package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/relaycast/relaycast/pkg/wire"
)

func TestNewMP3FileReaderErrorsOnMissingFile(t *testing.T) {
	clock := wire.NewSteadyClock()
	if _, err := NewMP3FileReader(clock, filepath.Join(t.TempDir(), "missing.mp3"), false, 20); err == nil {
		t.Fatal("expected an error opening a nonexistent mp3 file")
	}
}

func TestNewMP3FileReaderErrorsOnInvalidData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.mp3")
	if err := os.WriteFile(path, []byte("this is not an mp3 stream"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	clock := wire.NewSteadyClock()
	if _, err := NewMP3FileReader(clock, path, false, 20); err == nil {
		t.Fatal("expected an error decoding a file with no mp3 frame sync")
	}
}
