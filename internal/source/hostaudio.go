// ABOUTME: ALSA/JACK/PipeWire sources shell out to the platform's own capture tool rather than binding via cgo
// ABOUTME: Each is a thin preset over ProcessReader; see DESIGN.md for why this avoids a cgo audio-device dependency
package source

import (
	"strconv"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

// NewALSAReader captures from an ALSA device via arecord, the same
// approach snapcast's own reference server uses for its "alsa" source.
func NewALSAReader(clock wire.Clock, device string, format audio.Format, chunkMs int) *ProcessReader {
	args := []string{
		"-D", device,
		"-f", alsaFormatString(format.Bits),
		"-r", strconv.Itoa(format.Rate),
		"-c", strconv.Itoa(format.Channels),
		"-t", "raw",
	}
	return NewProcessReader(clock, "arecord", args, format, chunkMs)
}

// NewJACKReader captures from a JACK port via jack_capture.
func NewJACKReader(clock wire.Clock, port string, format audio.Format, chunkMs int) *ProcessReader {
	args := []string{"--raw", "--channels", strconv.Itoa(format.Channels), "--port", port, "-"}
	return NewProcessReader(clock, "jack_capture", args, format, chunkMs)
}

// NewPipeWireReader captures from a PipeWire node via pw-cat.
func NewPipeWireReader(clock wire.Clock, target string, format audio.Format, chunkMs int) *ProcessReader {
	args := []string{
		"--record", "-",
		"--target", target,
		"--format", alsaFormatString(format.Bits),
		"--rate", strconv.Itoa(format.Rate),
		"--channels", strconv.Itoa(format.Channels),
		"--raw",
	}
	return NewProcessReader(clock, "pw-cat", args, format, chunkMs)
}

func alsaFormatString(bits int) string {
	switch bits {
	case 8:
		return "U8"
	case 24:
		return "S24_LE"
	case 32:
		return "S32_LE"
	default:
		return "S16_LE"
	}
}
