// ABOUTME: Wire-level primitive encoders: length-prefixed strings and single-byte booleans
// ABOUTME: No nul terminators, no alignment padding, per spec 4.A
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// writeString writes a u32 length followed by the raw bytes of s.
func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

// readString reads a u32-length-prefixed string from r, enforcing the same
// overall message size ceiling the caller already validated payload_size
// against (a malformed length can still only read what's left in r).
func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return "", fmt.Errorf("wire: short string length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if int(n) > r.Len() {
		return "", fmt.Errorf("wire: string length %d exceeds remaining body %d", n, r.Len())
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil {
		return "", fmt.Errorf("wire: short string body: %w", err)
	}
	return string(out), nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, fmt.Errorf("wire: short bool: %w", err)
	}
	return b != 0, nil
}
