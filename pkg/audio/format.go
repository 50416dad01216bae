// ABOUTME: Sample format parsing and frame-size arithmetic
// ABOUTME: Immutable (rate, bits, channels) triple shared by readers, encoders and the wire codec
package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// Format is the immutable sample-format quadruple: rate, bits per sample,
// channel count, and the derived bytes-per-sample. 24-bit samples are
// packed into 4 bytes on the wire, matching the original snapcast layout.
type Format struct {
	Rate           int
	Bits           int
	Channels       int
	BytesPerSample int
}

// Inherit is the wildcard component meaning "take this field from the source".
const Inherit = "*"

// ParseFormat parses a "<rate>:<bits>:<channels>" triple. Any component may
// be "*", which is reported back as zero and must be filled in by the
// caller from a fallback format (the source's own format).
func ParseFormat(s string) (Format, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Format{}, fmt.Errorf("sample format %q: expected rate:bits:channels", s)
	}

	rate, err := parseComponent(parts[0])
	if err != nil {
		return Format{}, fmt.Errorf("sample format %q: rate: %w", s, err)
	}
	bits, err := parseComponent(parts[1])
	if err != nil {
		return Format{}, fmt.Errorf("sample format %q: bits: %w", s, err)
	}
	channels, err := parseComponent(parts[2])
	if err != nil {
		return Format{}, fmt.Errorf("sample format %q: channels: %w", s, err)
	}

	f := Format{Rate: rate, Bits: bits, Channels: channels}
	f.BytesPerSample = bytesPerSample(bits)
	return f, nil
}

func parseComponent(s string) (int, error) {
	if s == Inherit {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// bytesPerSample applies ceil(bits/8) with the 24-bit-packs-into-4 rule.
func bytesPerSample(bits int) int {
	if bits == 24 {
		return 4
	}
	return (bits + 7) / 8
}

// ResolveWildcards fills any zero ("*") component from fallback and
// recomputes BytesPerSample.
func (f Format) ResolveWildcards(fallback Format) Format {
	if f.Rate == 0 {
		f.Rate = fallback.Rate
	}
	if f.Bits == 0 {
		f.Bits = fallback.Bits
	}
	if f.Channels == 0 {
		f.Channels = fallback.Channels
	}
	f.BytesPerSample = bytesPerSample(f.Bits)
	return f
}

// Normalized recomputes BytesPerSample from Bits, for formats assembled
// field-by-field (e.g. parsed from a codec header) rather than via
// ParseFormat.
func (f Format) Normalized() Format {
	f.BytesPerSample = bytesPerSample(f.Bits)
	return f
}

// FrameSize is channels * bytesPerSample.
func (f Format) FrameSize() int {
	return f.Channels * f.BytesPerSample
}

// Frames returns the number of whole frames payloadSize bytes represents,
// and whether payloadSize divides evenly into frames.
func (f Format) Frames(payloadSize int) (frames int, exact bool) {
	fs := f.FrameSize()
	if fs == 0 {
		return 0, payloadSize == 0
	}
	return payloadSize / fs, payloadSize%fs == 0
}

// BytesForDuration returns the payload size, rounded down to a whole
// number of frames, needed to hold durationMs of audio.
func (f Format) BytesForDuration(durationMs int) int {
	frames := f.Rate * durationMs / 1000
	return frames * f.FrameSize()
}

func (f Format) String() string {
	return fmt.Sprintf("%d:%d:%d", f.Rate, f.Bits, f.Channels)
}

// Valid reports whether every component was resolved (no wildcards left)
// and is in a sane range.
func (f Format) Valid() bool {
	return f.Rate > 0 && f.Bits > 0 && f.Channels > 0 && f.BytesPerSample > 0
}
