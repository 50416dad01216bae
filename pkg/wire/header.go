// ABOUTME: Fixed 26-byte message header, little-endian on the wire
// ABOUTME: type/id/refersTo/sent/received/payload_size exactly per the framing spec
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/relaycast/relaycast/pkg/audio"
)

// Type identifies a message body on the wire.
type Type uint16

const (
	TypeBase Type = iota
	TypeCodecHeader
	TypeWireChunk
	TypeServerSettings
	TypeTime
	TypeHello
	_ // 6 is reserved ("kStreamTags" in the original, never allocated here)
	TypeClientInfo

	typeFirst = TypeBase
	typeLast  = TypeClientInfo
)

func (t Type) Valid() bool {
	return t >= typeFirst && t <= typeLast
}

func (t Type) String() string {
	switch t {
	case TypeBase:
		return "Base"
	case TypeCodecHeader:
		return "CodecHeader"
	case TypeWireChunk:
		return "WireChunk"
	case TypeServerSettings:
		return "ServerSettings"
	case TypeTime:
		return "Time"
	case TypeHello:
		return "Hello"
	case TypeClientInfo:
		return "ClientInfo"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

// MaxPayloadSize is the hard ceiling on payload_size, per invariant 1.
const MaxPayloadSize = 1_000_000

// HeaderSize is the fixed wire size of Header.
const HeaderSize = 26

// Header is the 26-byte envelope every message carries.
type Header struct {
	Type        Type
	ID          uint16
	RefersTo    uint16
	Sent        audio.Timeval
	Received    audio.Timeval
	PayloadSize uint32
}

// EncodeHeader writes exactly HeaderSize bytes to out.
func EncodeHeader(h Header, out []byte) error {
	if len(out) < HeaderSize {
		return fmt.Errorf("wire: header buffer too small: %d < %d", len(out), HeaderSize)
	}
	binary.LittleEndian.PutUint16(out[0:2], uint16(h.Type))
	binary.LittleEndian.PutUint16(out[2:4], h.ID)
	binary.LittleEndian.PutUint16(out[4:6], h.RefersTo)
	binary.LittleEndian.PutUint32(out[6:10], uint32(h.Sent.Sec))
	binary.LittleEndian.PutUint32(out[10:14], uint32(h.Sent.Usec))
	binary.LittleEndian.PutUint32(out[14:18], uint32(h.Received.Sec))
	binary.LittleEndian.PutUint32(out[18:22], uint32(h.Received.Usec))
	binary.LittleEndian.PutUint32(out[22:26], h.PayloadSize)
	return nil
}

// DecodeHeader parses exactly HeaderSize bytes. It does not validate Type
// or PayloadSize bounds; callers enforce invariants 1 and 2 so the
// violation can be attributed to a specific ProtocolError.
func DecodeHeader(in []byte) (Header, error) {
	if len(in) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header: %d < %d", len(in), HeaderSize)
	}
	return Header{
		Type:     Type(binary.LittleEndian.Uint16(in[0:2])),
		ID:       binary.LittleEndian.Uint16(in[2:4]),
		RefersTo: binary.LittleEndian.Uint16(in[4:6]),
		Sent: audio.Timeval{
			Sec:  int32(binary.LittleEndian.Uint32(in[6:10])),
			Usec: int32(binary.LittleEndian.Uint32(in[10:14])),
		},
		Received: audio.Timeval{
			Sec:  int32(binary.LittleEndian.Uint32(in[14:18])),
			Usec: int32(binary.LittleEndian.Uint32(in[18:22])),
		},
		PayloadSize: binary.LittleEndian.Uint32(in[22:26]),
	}, nil
}

// ReadHeader reads exactly HeaderSize bytes from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf[:])
}
