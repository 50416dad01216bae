// ABOUTME: Runs shairport-sync and parses its key/type/length/data metadata pipe as plain-text lines with hex data; XML-framed items are not parsed
// ABOUTME: Grounded on spec 4.C's Airplay subreader description; no pack example covers AirPlay so this follows the spec text directly
package source

import (
	"bufio"
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

// Property is one accumulated metadata item, keyed by its four-character
// shairport-sync "type" code (e.g. "asal" album, "asar" artist).
type Property struct {
	Code string
	Data []byte
}

// AirplayReader wraps a ProcessReader running shairport-sync's stdout for
// PCM, plus a side goroutine parsing its metadata pipe.
type AirplayReader struct {
	*ProcessReader
	MetadataPipe string
	OnProperties func(items []Property)

	stop chan struct{}
}

func NewAirplayReader(clock wire.Clock, metadataPipe string, format audio.Format, chunkMs int) *AirplayReader {
	proc := NewProcessReader(clock, "shairport-sync", []string{"-o", "stdout"}, format, chunkMs)
	return &AirplayReader{ProcessReader: proc, MetadataPipe: metadataPipe, stop: make(chan struct{})}
}

func (r *AirplayReader) Start(listener Listener) error {
	if r.MetadataPipe != "" {
		go r.readMetadata()
	}
	return r.ProcessReader.Start(listener)
}

func (r *AirplayReader) Stop() {
	close(r.stop)
	r.ProcessReader.Stop()
}

// readMetadata accumulates key/type/length/data items from the
// shairport-sync metadata pipe until an "mden" or "pcen" boundary, then
// reports the batch. The pipe's framing is plain ASCII hex fields
// separated by newlines, as shairport-sync's "pipe" metadata writer emits
// them: "<type> <code> <length>\n<hex data>\n".
func (r *AirplayReader) readMetadata() {
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		f, err := os.Open(r.MetadataPipe)
		if err != nil {
			return
		}
		r.scanMetadata(f)
		f.Close()
	}
}

func (r *AirplayReader) scanMetadata(f io.Reader) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var batch []Property
	for scanner.Scan() {
		header := strings.Fields(scanner.Text())
		if len(header) != 3 {
			continue
		}
		typeCode, itemCode := header[0], header[1]
		length, err := strconv.Atoi(header[2])
		if err != nil {
			continue
		}
		var data []byte
		if length > 0 && scanner.Scan() {
			data, _ = hex.DecodeString(scanner.Text())
		}

		if typeCode == "core" && (itemCode == "mden" || itemCode == "pcen") {
			if r.OnProperties != nil && len(batch) > 0 {
				r.OnProperties(batch)
			}
			batch = nil
			continue
		}
		batch = append(batch, Property{Code: itemCode, Data: data})
	}
}
