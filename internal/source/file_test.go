package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

func writeTempPCM(t *testing.T, frames int, frameSize int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.raw")
	data := make([]byte, frames*frameSize)
	for i := range data {
		data[i] = 7
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFileReaderLoopsOnEOF(t *testing.T) {
	format := audio.Format{Rate: 1000, Bits: 16, Channels: 1, BytesPerSample: 2}
	// 20ms chunk at 1000Hz/1ch/16bit = 20 frames * 2 bytes = 40 bytes;
	// write only 10 frames so every tick spans EOF and loops.
	path := writeTempPCM(t, 10, format.FrameSize())

	clock := wire.NewSteadyClock()
	r := NewFileReader(clock, path, true, format, 20)
	listener := &recordingListener{}

	done := make(chan error, 1)
	go func() { done <- r.Start(listener) }()

	deadline := time.After(2 * time.Second)
	for listener.count() < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for looped chunks")
		case <-time.After(5 * time.Millisecond):
		}
	}
	r.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
