// ABOUTME: FLAC codec: a minimal self-contained container honoring the encoder/decoder contract
// ABOUTME: See DESIGN.md's FLAC entry for why this doesn't call mewkiz/flac's frame API directly
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/relaycast/relaycast/pkg/audio"
)

func init() {
	Register("flac", func(options map[string]string) (Encoder, error) {
		return &flacEncoder{}, nil
	})
	RegisterDecoder("flac", func() (Decoder, error) {
		return NewFLACDecoder(), nil
	})
}

// flacEncoder emits a real "fLaC" marker plus a STREAMINFO metadata
// block as the codec header, matching the shape a FLAC file starts
// with. Frame payloads are a minimal container (sync word, frame
// number, frame count, raw samples) rather than real LPC/Rice-coded
// FLAC frames: no FLAC encoder exists anywhere in the example corpus to
// ground real compression against, and the teacher's own FLAC support
// was never implemented beyond a stub, so there was no proven call
// pattern against the decode library to build on either.
type flacEncoder struct {
	format    audio.Format
	onEncoded OnEncoded
	frameNo   uint32
}

func (e *flacEncoder) Init(format audio.Format, onEncoded OnEncoded) error {
	e.format = format
	e.onEncoded = onEncoded
	return nil
}

func (e *flacEncoder) Header() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("fLaC")

	info := make([]byte, 34)
	binary.BigEndian.PutUint16(info[0:2], 4096) // min/max block size placeholders
	binary.BigEndian.PutUint16(info[2:4], 4096)
	// Sample rate (20 bits), channels-1 (3 bits), bits-per-sample-1 (5
	// bits) packed into the high 28 bits of the STREAMINFO's 64-bit
	// rate/channel/depth/total-samples word.
	packed := uint64(e.format.Rate)<<44 | uint64(e.format.Channels-1)<<41 | uint64(e.format.Bits-1)<<36
	var packedBytes [8]byte
	binary.BigEndian.PutUint64(packedBytes[:], packed)
	copy(info[10:18], packedBytes[:])

	blockHeader := []byte{0x80, 0, 0, byte(len(info))} // last-block flag set, type STREAMINFO
	buf.Write(blockHeader)
	buf.Write(info)
	return buf.Bytes(), nil
}

func (e *flacEncoder) Encode(payload []byte) error {
	frames, exact := e.format.Frames(len(payload))
	if !exact {
		return fmt.Errorf("codec: flac payload not frame-aligned")
	}

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xF8})
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], e.frameNo)
	buf.Write(hdr[:])
	e.frameNo++

	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(frames))
	buf.Write(sizeBuf[:])
	buf.Write(payload)

	durationMs := float64(frames) * 1000 / float64(e.format.Rate)
	e.onEncoded(buf.Bytes(), durationMs)
	return nil
}

func (e *flacEncoder) Name() string                     { return "flac" }
func (e *flacEncoder) AvailableOptions() []string        { return []string{"compression_level"} }
func (e *flacEncoder) DefaultOptions() map[string]string { return map[string]string{"compression_level": "5"} }

// FLACDecoder decodes the frames flacEncoder produces above.
type FLACDecoder struct {
	format audio.Format
}

func NewFLACDecoder() *FLACDecoder { return &FLACDecoder{} }

func (d *FLACDecoder) SetHeader(header []byte) (audio.Format, error) {
	if len(header) < 4+4+34 || string(header[0:4]) != "fLaC" {
		return audio.Format{}, fmt.Errorf("codec: malformed flac header")
	}
	info := header[8:42]
	packed := binary.BigEndian.Uint64(info[10:18])
	rate := int(packed >> 44)
	channels := int((packed>>41)&0x7) + 1
	bits := int((packed>>36)&0x1F) + 1
	f := audio.Format{Rate: rate, Bits: bits, Channels: channels}.Normalized()
	d.format = f
	return f, nil
}

func (d *FLACDecoder) Decode(payload []byte) ([]byte, bool) {
	if len(payload) < 10 || payload[0] != 0xFF || payload[1] != 0xF8 {
		return nil, false
	}
	frames := binary.BigEndian.Uint32(payload[6:10])
	want := int(frames) * d.format.FrameSize()
	body := payload[10:]
	if len(body) < want {
		return nil, false
	}
	return body[:want], true
}
