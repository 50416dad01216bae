// ABOUTME: Typed message bodies: CodecHeader, WireChunk, ServerSettings, Time, Hello, ClientInfo
// ABOUTME: Each implements doserialize against a bytes.Buffer; a matching decodeXxx function parses it from a bytes.Reader
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/relaycast/relaycast/pkg/audio"
)

// Body is any typed message payload.
type Body interface {
	Type() Type
	doserialize(buf *bytes.Buffer)
}

// CodecHeader is the first typed message sent to every new session.
type CodecHeader struct {
	CodecName string
	Header    []byte
}

func (CodecHeader) Type() Type { return TypeCodecHeader }

func (c CodecHeader) doserialize(buf *bytes.Buffer) {
	writeString(buf, c.CodecName)
	var lenBuf [4]byte
	putU32(lenBuf[:], uint32(len(c.Header)))
	buf.Write(lenBuf[:])
	buf.Write(c.Header)
}

func decodeCodecHeader(r *bytes.Reader) (CodecHeader, error) {
	name, err := readString(r)
	if err != nil {
		return CodecHeader{}, err
	}
	n, err := readU32(r)
	if err != nil {
		return CodecHeader{}, err
	}
	if int(n) > r.Len() {
		return CodecHeader{}, fmt.Errorf("wire: codec header blob length %d exceeds body", n)
	}
	blob := make([]byte, n)
	if _, err := r.Read(blob); err != nil {
		return CodecHeader{}, err
	}
	return CodecHeader{CodecName: name, Header: blob}, nil
}

// WireChunk is a timestamped slice of PCM or encoded audio.
type WireChunk struct {
	Timestamp audio.Timeval
	Payload   []byte
}

func (WireChunk) Type() Type { return TypeWireChunk }

func (c WireChunk) doserialize(buf *bytes.Buffer) {
	var tbuf [8]byte
	putI32(tbuf[0:4], c.Timestamp.Sec)
	putI32(tbuf[4:8], c.Timestamp.Usec)
	buf.Write(tbuf[:])
	var lenBuf [4]byte
	putU32(lenBuf[:], uint32(len(c.Payload)))
	buf.Write(lenBuf[:])
	buf.Write(c.Payload)
}

func decodeWireChunk(r *bytes.Reader) (WireChunk, error) {
	sec, err := readI32(r)
	if err != nil {
		return WireChunk{}, err
	}
	usec, err := readI32(r)
	if err != nil {
		return WireChunk{}, err
	}
	n, err := readU32(r)
	if err != nil {
		return WireChunk{}, err
	}
	if int(n) > r.Len() {
		return WireChunk{}, fmt.Errorf("wire: chunk payload length %d exceeds body", n)
	}
	payload := make([]byte, n)
	if _, err := r.Read(payload); err != nil {
		return WireChunk{}, err
	}
	return WireChunk{Timestamp: audio.Timeval{Sec: sec, Usec: usec}, Payload: payload}, nil
}

// ServerSettings carries bufferMs/latency/volume/muted as JSON, per spec 6.
type ServerSettings struct {
	BufferMs int  `json:"bufferMs"`
	Latency  int  `json:"latency"`
	Volume   int  `json:"volume"`
	Muted    bool `json:"muted"`
}

func (ServerSettings) Type() Type { return TypeServerSettings }

func (s ServerSettings) doserialize(buf *bytes.Buffer) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func decodeServerSettings(r *bytes.Reader) (ServerSettings, error) {
	var s ServerSettings
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return ServerSettings{}, fmt.Errorf("wire: malformed ServerSettings JSON: %w", err)
	}
	return s, nil
}

// TimeVersion distinguishes the v1 (latency-only) and v2 (extended) Time
// body layouts. The receiver detects v1 by EOF after reading latency.
type TimeVersion uint8

const (
	TimeV1 TimeVersion = 1
	TimeV2 TimeVersion = 2
)

// Time is the round-trip timing message, sent both directions.
type Time struct {
	Latency audio.Timeval
	Version TimeVersion // TimeV1 on a decoded v1 message; for outgoing messages any value but TimeV1, zero included, is sent as v2
	Source  uint8
	Quality float32
	ErrorMs float32
}

func (Time) Type() Type { return TypeTime }

func (t Time) doserialize(buf *bytes.Buffer) {
	var tbuf [8]byte
	putI32(tbuf[0:4], t.Latency.Sec)
	putI32(tbuf[4:8], t.Latency.Usec)
	buf.Write(tbuf[:])

	if t.Version == TimeV1 {
		return
	}

	buf.WriteByte(byte(TimeV2))
	buf.WriteByte(t.Source)
	var f [4]byte
	putU32(f[:], math.Float32bits(t.Quality))
	buf.Write(f[:])
	putU32(f[:], math.Float32bits(t.ErrorMs))
	buf.Write(f[:])
}

func decodeTime(r *bytes.Reader) (Time, error) {
	sec, err := readI32(r)
	if err != nil {
		return Time{}, err
	}
	usec, err := readI32(r)
	if err != nil {
		return Time{}, err
	}
	t := Time{Latency: audio.Timeval{Sec: sec, Usec: usec}}

	if r.Len() == 0 {
		t.Version = TimeV1
		return t, nil
	}

	version, err := r.ReadByte()
	if err != nil {
		return Time{}, err
	}
	source, err := r.ReadByte()
	if err != nil {
		return Time{}, err
	}
	quality, err := readU32(r)
	if err != nil {
		return Time{}, err
	}
	errMs, err := readU32(r)
	if err != nil {
		return Time{}, err
	}
	t.Version = TimeVersion(version)
	t.Source = source
	t.Quality = math.Float32frombits(quality)
	t.ErrorMs = math.Float32frombits(errMs)
	return t, nil
}

// Hello is the client->server identity exchange, carried as JSON.
type Hello struct {
	HostName                  string `json:"HostName"`
	Mac                       string `json:"Mac"`
	ID                        string `json:"ID"`
	Instance                  int    `json:"Instance"`
	Version                   string `json:"Version"`
	ClientName                string `json:"ClientName"`
	OS                        string `json:"OS"`
	Arch                      string `json:"Arch"`
	SnapStreamProtocolVersion int    `json:"SnapStreamProtocolVersion"`
}

func (Hello) Type() Type { return TypeHello }

func (h Hello) doserialize(buf *bytes.Buffer) {
	b, _ := json.Marshal(h)
	buf.Write(b)
}

func decodeHello(r *bytes.Reader) (Hello, error) {
	var h Hello
	if err := json.NewDecoder(r).Decode(&h); err != nil {
		return Hello{}, fmt.Errorf("wire: malformed Hello JSON: %w", err)
	}
	return h, nil
}

// ClientInfo carries client-reported state updates as JSON.
type ClientInfo struct {
	Raw json.RawMessage
}

func (ClientInfo) Type() Type { return TypeClientInfo }

func (c ClientInfo) doserialize(buf *bytes.Buffer) {
	if len(c.Raw) == 0 {
		buf.WriteString("{}")
		return
	}
	buf.Write(c.Raw)
}

func decodeClientInfo(r *bytes.Reader) (ClientInfo, error) {
	raw := make([]byte, r.Len())
	if _, err := r.Read(raw); err != nil && r.Len() > 0 {
		return ClientInfo{}, err
	}
	if !json.Valid(raw) {
		return ClientInfo{}, fmt.Errorf("wire: malformed ClientInfo JSON")
	}
	return ClientInfo{Raw: raw}, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putI32(b []byte, v int32) { putU32(b, uint32(v)) }

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func readI32(r *bytes.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}
