package stream

import (
	"testing"
	"time"

	"github.com/relaycast/relaycast/internal/config"
	"github.com/relaycast/relaycast/internal/source"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/codec"
	"github.com/relaycast/relaycast/pkg/wire"
)

type fakeReader struct {
	format audio.Format
}

func (r *fakeReader) Start(listener source.Listener) error { return nil }
func (r *fakeReader) Stop()                                 {}
func (r *fakeReader) Format() audio.Format                  { return r.format }

type fakeListener struct {
	headers [][]byte
	chunks  []wire.WireChunk
}

func (f *fakeListener) OnCodecHeader(name string, header []byte) {
	f.headers = append(f.headers, header)
}

func (f *fakeListener) OnWireChunk(chunk wire.WireChunk) {
	f.chunks = append(f.chunks, chunk)
}

type fakeArtCache struct {
	url string
}

func (c *fakeArtCache) CacheBytes(data []byte) (string, error) { return c.url, nil }

func newTestStream(t *testing.T) *Stream {
	t.Helper()
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2}
	encoder, err := codec.New("pcm", nil)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	uri := &config.StreamURI{Name: "test"}
	s, err := New(wire.NewSteadyClock(), uri, format, &fakeReader{format: format}, encoder, &fakeArtCache{url: "file:///art.jpg"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAddListenerDeliversCodecHeaderImmediately(t *testing.T) {
	s := newTestStream(t)
	l := &fakeListener{}
	s.AddListener("sess-1", l)
	if len(l.headers) != 1 {
		t.Fatalf("expected one header delivered, got %d", len(l.headers))
	}
}

func TestOnChunkStampsAndAdvancesTimestamp(t *testing.T) {
	s := newTestStream(t)
	l := &fakeListener{}
	s.AddListener("sess-1", l)

	format := s.Format
	start := audio.Timeval{Sec: 100, Usec: 0}
	chunk := audio.Chunk{Format: format, Timestamp: start, Payload: make([]byte, format.BytesForDuration(20))}

	s.OnChunk(chunk)
	s.OnChunk(audio.Chunk{Format: format, Timestamp: start.AddMillis(20), Payload: make([]byte, format.BytesForDuration(20))})

	if len(l.chunks) != 2 {
		t.Fatalf("expected 2 chunks fanned out, got %d", len(l.chunks))
	}
	if l.chunks[0].Timestamp != start {
		t.Fatalf("first chunk should be stamped with reader anchor, got %+v", l.chunks[0].Timestamp)
	}
	if !l.chunks[0].Timestamp.Less(l.chunks[1].Timestamp) {
		t.Fatalf("second chunk must advance past the first: %+v then %+v", l.chunks[0].Timestamp, l.chunks[1].Timestamp)
	}
}

func TestOnStateChangeTracksReaderState(t *testing.T) {
	s := newTestStream(t)
	if s.State() != StateIdle {
		t.Fatalf("expected initial state idle, got %v", s.State())
	}
	s.OnStateChange(source.StatePlaying)
	if s.State() != StatePlaying {
		t.Fatalf("expected playing after reader reports playing, got %v", s.State())
	}
	s.OnStateChange(source.StateIdle)
	if s.State() != StateIdle {
		t.Fatalf("expected idle after reader reports idle, got %v", s.State())
	}
}

func TestOnResyncDoesNotPanic(t *testing.T) {
	s := newTestStream(t)
	s.OnResync(75 * time.Millisecond)
}

func TestControlOperationFailsClosedWithoutCapability(t *testing.T) {
	s := newTestStream(t)
	err := s.Pause()
	capErr, ok := err.(CapabilityError)
	if !ok {
		t.Fatalf("expected CapabilityError, got %v (%T)", err, err)
	}
	if capErr.Error() != "can_pause_is_false" {
		t.Fatalf("unexpected error text: %s", capErr.Error())
	}
}

func TestControlOperationFailsWithoutScriptEvenWithCapability(t *testing.T) {
	s := newTestStream(t)
	s.OnPropertiesChanged(Properties{CanPause: true})
	err := s.Pause()
	if err != ErrControlScriptUnavailable {
		t.Fatalf("expected ErrControlScriptUnavailable, got %v", err)
	}
}

func TestPropertiesMergeResolvesArtDataToURL(t *testing.T) {
	s := newTestStream(t)
	s.OnPropertiesChanged(Properties{Title: "A", ArtData: []byte("fake-jpeg-bytes")})
	props := s.Properties()
	if props.Title != "A" {
		t.Fatalf("expected title to carry through, got %q", props.Title)
	}
	if props.ArtURL != "file:///art.jpg" {
		t.Fatalf("expected art cache url, got %q", props.ArtURL)
	}
	if props.ArtData != nil {
		t.Fatalf("expected art data stripped after merge, got %d bytes", len(props.ArtData))
	}
}

func TestPropertiesMergeEnrichesMissingFieldsOnly(t *testing.T) {
	s := newTestStream(t)
	s.OnPropertiesChanged(Properties{Title: "A", Artist: "B", DurationMs: 1000})
	s.OnPropertiesChanged(Properties{Title: "C"})
	props := s.Properties()
	if props.Title != "C" {
		t.Fatalf("expected title overwritten, got %q", props.Title)
	}
	if props.Artist != "B" {
		t.Fatalf("expected artist preserved from prior update, got %q", props.Artist)
	}
	if props.DurationMs != 1000 {
		t.Fatalf("expected duration preserved, got %d", props.DurationMs)
	}
}

func TestIsNullReflectsEncoderName(t *testing.T) {
	s := newTestStream(t)
	if s.IsNull() {
		t.Fatalf("pcm-encoded stream must not report IsNull")
	}
}
