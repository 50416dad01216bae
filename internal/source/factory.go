// ABOUTME: Builds the Reader variant named by a parsed stream URI's scheme
package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relaycast/relaycast/internal/config"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

// New constructs the Reader variant named by uri.Scheme. format is passed
// to the reader as given; wildcard components are not resolved here.
func New(clock wire.Clock, uri *config.StreamURI, format audio.Format) (Reader, error) {
	switch uri.Scheme {
	case config.SchemePipe:
		return NewPipeReader(clock, uri.Path, format, uri.ChunkMs), nil
	case config.SchemeFile:
		loop := uri.ExtraBool("loop", false)
		if uri.Extra["decode"] == "mp3" || strings.HasSuffix(strings.ToLower(uri.Path), ".mp3") {
			return NewMP3FileReader(clock, uri.Path, loop, uri.ChunkMs)
		}
		return NewFileReader(clock, uri.Path, loop, format, uri.ChunkMs), nil
	case config.SchemeProcess:
		cmd := uri.Extra["command"]
		if cmd == "" {
			return nil, fmt.Errorf("source: process:// requires a command= parameter")
		}
		r := NewProcessReader(clock, cmd, splitArgs(uri.Extra["params"]), format, uri.ChunkMs)
		if secs, err := strconv.Atoi(uri.Extra["wd_timeout_s"]); err == nil && secs > 0 {
			r.WatchdogTimeout = time.Duration(secs) * time.Second
		}
		return r, nil
	case config.SchemeTCP:
		server := uri.Extra["mode"] == "server"
		return NewTCPReader(clock, uri.Host, server, format, uri.ChunkMs), nil
	case config.SchemeALSA:
		device := uri.Extra["device"]
		if device == "" {
			device = "default"
		}
		return NewALSAReader(clock, device, format, uri.ChunkMs), nil
	case config.SchemeJACK:
		return NewJACKReader(clock, uri.Extra["port"], format, uri.ChunkMs), nil
	case config.SchemePipeWire:
		return NewPipeWireReader(clock, uri.Extra["target"], format, uri.ChunkMs), nil
	case config.SchemeAirplay:
		return NewAirplayReader(clock, uri.Extra["metadata_pipe"], format, uri.ChunkMs), nil
	case config.SchemeLibrespot:
		return NewLibrespotReader(clock, splitArgs(uri.Extra["params"]), format, uri.ChunkMs), nil
	case config.SchemeSpotify:
		// spotifyd and librespot share librespot's stdout-PCM/stderr-log
		// contract; spotify:// just names a different default binary.
		r := NewLibrespotReader(clock, splitArgs(uri.Extra["params"]), format, uri.ChunkMs)
		r.ProcessReader.Command = "spotifyd"
		return r, nil
	default:
		return nil, fmt.Errorf("source: scheme %q has no reader (use internal/source.NewMetaReader directly for meta://)", uri.Scheme)
	}
}

func splitArgs(s string) []string {
	return strings.Fields(s)
}
