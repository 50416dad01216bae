// ABOUTME: Runs librespot and scrapes its stderr log lines for now-playing metadata
// ABOUTME: Grounded on spec 4.C's librespot subreader description: "[<ts> <LEVEL> <module>] <message>" lines, extracting "<Title> (<ms> ms) loaded"
package source

import (
	"regexp"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

var librespotLoadedRe = regexp.MustCompile(`^\[[^\]]*\]\s*(.+?) \((\d+) ms\) loaded$`)

// LibrespotReader wraps a ProcessReader running librespot with raw PCM on
// stdout, scraping its stderr for track metadata.
type LibrespotReader struct {
	*ProcessReader
	OnTrack func(title string, durationMs int)
}

func NewLibrespotReader(clock wire.Clock, args []string, format audio.Format, chunkMs int) *LibrespotReader {
	r := &LibrespotReader{}
	proc := NewProcessReader(clock, "librespot", args, format, chunkMs)
	proc.OnStderrLine = r.handleLine
	r.ProcessReader = proc
	return r
}

func (r *LibrespotReader) handleLine(line string) {
	if r.OnTrack == nil {
		return
	}
	m := librespotLoadedRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	var ms int
	for _, c := range m[2] {
		ms = ms*10 + int(c-'0')
	}
	r.OnTrack(m[1], ms)
}
