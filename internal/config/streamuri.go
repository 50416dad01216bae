// ABOUTME: Parses stream source URIs into a scheme plus canonical and scheme-specific options
// ABOUTME: Grounded on the teacher's flag-driven stream setup, generalized to the URI grammar spec §6 names
package config

import (
	"fmt"
	"net/url"
	"strconv"
)

// Scheme identifies which source reader a StreamURI binds to.
type Scheme string

const (
	SchemePipe       Scheme = "pipe"
	SchemeFile       Scheme = "file"
	SchemeProcess    Scheme = "process"
	SchemeTCP        Scheme = "tcp"
	SchemeALSA       Scheme = "alsa"
	SchemeJACK       Scheme = "jack"
	SchemePipeWire   Scheme = "pipewire"
	SchemeAirplay    Scheme = "airplay"
	SchemeLibrespot  Scheme = "librespot"
	SchemeSpotify    Scheme = "spotify"
	SchemeMeta       Scheme = "meta"
)

var validSchemes = map[Scheme]bool{
	SchemePipe: true, SchemeFile: true, SchemeProcess: true, SchemeTCP: true,
	SchemeALSA: true, SchemeJACK: true, SchemePipeWire: true, SchemeAirplay: true,
	SchemeLibrespot: true, SchemeSpotify: true, SchemeMeta: true,
}

// StreamURI is a parsed `scheme://host/path?k=v&...` source descriptor.
type StreamURI struct {
	Scheme Scheme
	Host   string
	Path   string

	Name                string
	Codec               string
	SampleFormat        string
	ChunkMs             int
	ControlScript       string
	ControlScriptParams string

	// Extra carries scheme-specific keys (tcp's mode/port, alsa's
	// device/send_silence/idle_threshold, ...) verbatim.
	Extra map[string]string
}

// ParseStreamURI parses a raw stream source URI into its canonical and
// scheme-specific option fields.
func ParseStreamURI(raw string) (*StreamURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: invalid stream uri: %w", err)
	}
	scheme := Scheme(u.Scheme)
	if !validSchemes[scheme] {
		return nil, fmt.Errorf("config: invalid stream uri: unknown scheme %q", u.Scheme)
	}

	s := &StreamURI{
		Scheme: scheme,
		Host:   u.Host,
		Path:   u.Path,
		Extra:  map[string]string{},
	}

	q := u.Query()
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		v := values[0]
		switch key {
		case "name":
			s.Name = v
		case "codec":
			s.Codec = v
		case "sampleformat":
			s.SampleFormat = v
		case "chunk_ms":
			ms, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("config: invalid stream uri: chunk_ms must be an integer: %w", err)
			}
			s.ChunkMs = ms
		case "controlscript":
			s.ControlScript = v
		case "controlscriptparams":
			s.ControlScriptParams = v
		default:
			s.Extra[key] = v
		}
	}

	if s.ChunkMs == 0 {
		s.ChunkMs = 20
	}
	if s.Name == "" {
		s.Name = defaultName(s)
	}

	return s, nil
}

func defaultName(s *StreamURI) string {
	if s.Path != "" {
		return s.Path
	}
	return string(s.Scheme)
}

// ExtraInt reads a scheme-specific integer option, returning fallback
// when absent or unparsable.
func (s *StreamURI) ExtraInt(key string, fallback int) int {
	v, ok := s.Extra[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ExtraBool reads a scheme-specific boolean option, returning fallback
// when absent or unparsable.
func (s *StreamURI) ExtraBool(key string, fallback bool) bool {
	v, ok := s.Extra[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
