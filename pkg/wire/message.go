// ABOUTME: Top-level message envelope: stamps sent/received and dispatches body encode/decode by type
// ABOUTME: Errors here surface as the session's ProtocolError / InvalidArgument per spec 7
package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/relaycast/relaycast/pkg/audio"
)

// ErrInvalidArgument is returned for oversize payloads and malformed
// bodies; it causes session termination per spec invariant 1.
var ErrInvalidArgument = errors.New("wire: invalid argument")

// ErrUnknownType is returned for any type value outside the known enum;
// it causes session termination per spec invariant 2.
var ErrUnknownType = errors.New("wire: unknown message type")

// Message pairs a Header with its typed Body.
type Message struct {
	Header Header
	Body   Body
}

// Clock supplies the monotonic "now" used to stamp sent/received
// timestamps. Sessions and client connections share one Clock instance so
// that Timevals are comparable within a connection.
type Clock interface {
	Now() audio.Timeval
}

// EncodeMessage serializes body into a Header+payload pair and returns
// the encoded bytes. It stamps Sent from clock.Now() at call time; Received is left
// zero (the receiving side fills it in on decode).
func EncodeMessage(clock Clock, id, refersTo uint16, body Body) ([]byte, error) {
	var payload bytes.Buffer
	body.doserialize(&payload)

	if payload.Len() > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload_size %d exceeds %d", ErrInvalidArgument, payload.Len(), MaxPayloadSize)
	}

	h := Header{
		Type:        body.Type(),
		ID:          id,
		RefersTo:    refersTo,
		Sent:        clock.Now(),
		PayloadSize: uint32(payload.Len()),
	}

	out := make([]byte, HeaderSize+payload.Len())
	if err := EncodeHeader(h, out); err != nil {
		return nil, err
	}
	copy(out[HeaderSize:], payload.Bytes())
	return out, nil
}

// DecodeBody parses a message body for the given header.Type, stamping
// Received from clock.Now(). It enforces invariants 1 and 2.
func DecodeBody(clock Clock, h *Header, payload []byte) (Body, error) {
	if !h.Type.Valid() {
		return nil, fmt.Errorf("%w: type %d", ErrUnknownType, uint16(h.Type))
	}
	if int(h.PayloadSize) > MaxPayloadSize || len(payload) != int(h.PayloadSize) {
		return nil, fmt.Errorf("%w: payload_size %d", ErrInvalidArgument, h.PayloadSize)
	}

	h.Received = clock.Now()

	r := bytes.NewReader(payload)
	var (
		body Body
		err  error
	)
	switch h.Type {
	case TypeBase:
		return nil, fmt.Errorf("%w: Base is never sent", ErrInvalidArgument)
	case TypeCodecHeader:
		body, err = decodeCodecHeader(r)
	case TypeWireChunk:
		body, err = decodeWireChunk(r)
	case TypeServerSettings:
		body, err = decodeServerSettings(r)
	case TypeTime:
		body, err = decodeTime(r)
	case TypeHello:
		body, err = decodeHello(r)
	case TypeClientInfo:
		body, err = decodeClientInfo(r)
	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnknownType, uint16(h.Type))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return body, nil
}
