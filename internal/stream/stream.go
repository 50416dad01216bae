// ABOUTME: One logical audio stream: owns a reader and an encoder, aggregates listeners, exposes capability-gated controls
// ABOUTME: Grounded on spec 4.E; timestamp discipline for tv_encoded_chunk follows spec 4.D exactly
package stream

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relaycast/relaycast/internal/config"
	"github.com/relaycast/relaycast/internal/source"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/codec"
	"github.com/relaycast/relaycast/pkg/wire"
)

// State mirrors spec §3's stream state, including the disabled state a
// reader never reports on its own.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateDisabled:
		return "disabled"
	default:
		return "idle"
	}
}

// CapabilityError is returned by a control operation whose prerequisite
// capability flag is false, e.g. "can_seek_is_false".
type CapabilityError struct {
	Flag string
}

func (e CapabilityError) Error() string { return fmt.Sprintf("%s_is_false", e.Flag) }

// Listener receives the codec header (once) and every encoded chunk for
// a stream it is bound to. The fan-out layer's per-session adapter
// implements this.
type Listener interface {
	OnCodecHeader(name string, header []byte)
	OnWireChunk(chunk wire.WireChunk)
}

// Stream owns exactly one reader and one encoder and fans encoded chunks
// out to its listeners.
type Stream struct {
	ID     string
	URI    *config.StreamURI
	Format audio.Format

	clock    wire.Clock
	reader   source.Reader
	encoder  codec.Encoder
	script   *ControlScript
	artCache ArtCache

	mu        sync.Mutex
	state     State
	props     Properties
	listeners map[string]Listener
	header    []byte
	headerSet bool
	tvEncoded audio.Timeval
	anchorSet bool

	stop chan struct{}
}

// New constructs a stream from its parsed URI, the sample format it
// resolved to (wildcards already filled in), and a codec encoder built
// for that format.
func New(clock wire.Clock, uri *config.StreamURI, format audio.Format, reader source.Reader, encoder codec.Encoder, artCache ArtCache) (*Stream, error) {
	s := &Stream{
		ID:        uri.Name,
		URI:       uri,
		Format:    format,
		clock:     clock,
		reader:    reader,
		encoder:   encoder,
		artCache:  artCache,
		listeners: make(map[string]Listener),
		stop:      make(chan struct{}),
	}
	if err := encoder.Init(format, s.onEncoded); err != nil {
		return nil, fmt.Errorf("stream %s: encoder init: %w", s.ID, err)
	}
	// The null codec has no header; its streams are still built, with a
	// nil header, so they can feed a meta stream.
	header, err := encoder.Header()
	if err != nil && !s.IsNull() {
		return nil, fmt.Errorf("stream %s: encoder header: %w", s.ID, err)
	}
	s.header = header
	s.headerSet = true

	if uri.ControlScript != "" {
		script, err := StartControlScript(uri.ControlScript, uri.ControlScriptParams)
		if err != nil {
			log.Printf("stream %s: control script failed to start: %v", s.ID, err)
		} else {
			s.script = script
		}
	}
	return s, nil
}

// IsNull reports whether this stream's codec is "null": such a stream is
// never sent to a session directly, only consumed by a meta stream.
func (s *Stream) IsNull() bool { return s.encoder.Name() == "null" }

// Start begins the reader's loop; blocks until Stop is called.
func (s *Stream) Start() error {
	return s.reader.Start(s)
}

// Stop halts the reader and, if running, the control script.
func (s *Stream) Stop() {
	close(s.stop)
	s.reader.Stop()
	if s.script != nil {
		s.script.Close()
	}
}

// AddListener registers l under id and immediately delivers the current
// codec header, per spec §4.E ("called once per new session bound to
// this stream").
func (s *Stream) AddListener(id string, l Listener) {
	s.mu.Lock()
	s.listeners[id] = l
	header, name := s.header, s.encoder.Name()
	s.mu.Unlock()
	l.OnCodecHeader(name, header)
}

// RemoveListener unbinds a session from this stream.
func (s *Stream) RemoveListener(id string) {
	s.mu.Lock()
	delete(s.listeners, id)
	s.mu.Unlock()
}

// Info is a read-only snapshot of a stream's identity and activity,
// for display by internal/tui; it never drives playback decisions.
type Info struct {
	ID            string
	Codec         string
	State         State
	ListenerCount int
	Title         string
	Artist        string
}

// Snapshot returns the stream's current Info.
func (s *Stream) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:            s.ID,
		Codec:         s.encoder.Name(),
		State:         s.state,
		ListenerCount: len(s.listeners),
		Title:         s.props.Title,
		Artist:        s.props.Artist,
	}
}

// State returns the stream's current playback state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Properties returns a copy of the stream's current properties.
func (s *Stream) Properties() Properties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// OnPropertiesChanged merges update into the stream's properties,
// resolving art_data to art_url via the art cache, and stores the
// blob-free result, which Properties returns. Listeners are not notified,
// and the Airplay and Librespot readers' metadata callbacks are not
// connected to it.
func (s *Stream) OnPropertiesChanged(update Properties) {
	s.mu.Lock()
	s.props = s.props.Merge(update, s.artCache)
	s.mu.Unlock()
}

// --- source.Listener ---

func (s *Stream) OnChunk(chunk audio.Chunk) {
	s.mu.Lock()
	if !s.anchorSet {
		s.tvEncoded = chunk.Timestamp
		s.anchorSet = true
	}
	s.mu.Unlock()

	if err := s.encoder.Encode(chunk.Payload); err != nil {
		log.Printf("stream %s: encode error: %v", s.ID, err)
	}
}

func (s *Stream) OnResync(lag time.Duration) {
	log.Printf("stream %s: resync, lag %s", s.ID, lag)
}

func (s *Stream) OnStateChange(readerState source.State) {
	s.mu.Lock()
	if readerState == source.StatePlaying {
		s.state = StatePlaying
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// onEncoded is the encoder's callback: stamps the encoded chunk with
// tv_encoded_chunk, advances the anchor by the encoded duration, and
// fans the chunk out to every bound listener.
func (s *Stream) onEncoded(payload []byte, durationMs float64) {
	s.mu.Lock()
	timestamp := s.tvEncoded
	s.tvEncoded = s.tvEncoded.AddMillis(durationMs)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	chunk := wire.WireChunk{Timestamp: timestamp, Payload: payload}
	for _, l := range listeners {
		l.OnWireChunk(chunk)
	}
}

// --- capability-gated controls, spec 4.E ---

func (s *Stream) requireCapability(flag string, ok bool) error {
	if !ok {
		return CapabilityError{Flag: flag}
	}
	return nil
}

func (s *Stream) call(method string, params any) error {
	if s.script == nil {
		return ErrControlScriptUnavailable
	}
	_, err := s.script.Call(method, params, 5*time.Second)
	return err
}

func (s *Stream) SetShuffle(v bool) error {
	props := s.Properties()
	if err := s.requireCapability("can_control", props.CanControl); err != nil {
		return err
	}
	return s.call("setShuffle", map[string]bool{"shuffle": v})
}

func (s *Stream) SetLoop(v bool) error {
	props := s.Properties()
	if err := s.requireCapability("can_control", props.CanControl); err != nil {
		return err
	}
	return s.call("setLoop", map[string]bool{"loop": v})
}

func (s *Stream) SetVolume(v int) error {
	props := s.Properties()
	if err := s.requireCapability("can_control", props.CanControl); err != nil {
		return err
	}
	return s.call("setVolume", map[string]int{"volume": v})
}

func (s *Stream) SetMute(v bool) error {
	props := s.Properties()
	if err := s.requireCapability("can_control", props.CanControl); err != nil {
		return err
	}
	return s.call("setMute", map[string]bool{"mute": v})
}

func (s *Stream) SetRate(v float64) error {
	props := s.Properties()
	if err := s.requireCapability("can_control", props.CanControl); err != nil {
		return err
	}
	return s.call("setRate", map[string]float64{"rate": v})
}

func (s *Stream) SetPosition(ms int) error {
	props := s.Properties()
	if err := s.requireCapability("can_seek", props.CanSeek); err != nil {
		return err
	}
	return s.call("setPosition", map[string]int{"position_ms": ms})
}

func (s *Stream) Seek(offsetMs int) error {
	props := s.Properties()
	if err := s.requireCapability("can_seek", props.CanSeek); err != nil {
		return err
	}
	return s.call("seek", map[string]int{"offset_ms": offsetMs})
}

func (s *Stream) Next() error {
	props := s.Properties()
	if err := s.requireCapability("can_go_next", props.CanGoNext); err != nil {
		return err
	}
	return s.call("next", nil)
}

func (s *Stream) Previous() error {
	props := s.Properties()
	if err := s.requireCapability("can_go_previous", props.CanGoPrevious); err != nil {
		return err
	}
	return s.call("previous", nil)
}

func (s *Stream) Pause() error {
	props := s.Properties()
	if err := s.requireCapability("can_pause", props.CanPause); err != nil {
		return err
	}
	return s.call("pause", nil)
}

func (s *Stream) PlayPause() error {
	props := s.Properties()
	if err := s.requireCapability("can_control", props.CanControl); err != nil {
		return err
	}
	return s.call("playPause", nil)
}

func (s *Stream) Play() error {
	props := s.Properties()
	if err := s.requireCapability("can_play", props.CanPlay); err != nil {
		return err
	}
	return s.call("play", nil)
}
