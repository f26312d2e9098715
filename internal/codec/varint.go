// Package codec implements pure decode/encode functions for the
// Minecraft Java Edition framing used on the client-facing wire: the
// injected client-IP header, VarInts, length-prefixed strings, the
// handshake packet and the Login Start packet.
package codec

import "github.com/codingbear/mcrouter/internal/apperr"

// MaxVarIntBytes is the largest number of bytes a 32-bit VarInt can
// occupy on the wire.
const MaxVarIntBytes = 5

// ReadVarInt decodes a VarInt from buf starting at offset. It returns
// the decoded value and the number of bytes consumed. It fails with
// PROTOCOL_MALFORMED if the buffer ends before a terminating byte is
// seen, or if the VarInt exceeds five bytes.
func ReadVarInt(buf []byte, offset int) (value int32, n int, err error) {
	var result int32
	var shift uint
	for n = 0; ; n++ {
		if n >= MaxVarIntBytes {
			return 0, 0, apperr.New(apperr.ProtocolMalformed, "varint too large")
		}
		if offset+n >= len(buf) {
			return 0, 0, apperr.New(apperr.ProtocolMalformed, "varint truncated")
		}
		b := buf[offset+n]
		result |= int32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, n + 1, nil
		}
		shift += 7
	}
}

// WriteVarInt encodes v and appends it to buf, returning the extended
// slice. Used by tests to build packets.
func WriteVarInt(buf []byte, v int32) []byte {
	u := uint32(v)
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}

// ReadString decodes a Minecraft string (VarInt length prefix followed
// by that many UTF-8 bytes) from buf at offset. Returns the decoded
// string and total bytes consumed (length prefix + payload).
func ReadString(buf []byte, offset int) (value string, n int, err error) {
	strLen, lenBytes, err := ReadVarInt(buf, offset)
	if err != nil {
		return "", 0, err
	}
	if strLen < 0 {
		return "", 0, apperr.New(apperr.ProtocolMalformed, "negative string length")
	}
	start := offset + lenBytes
	end := start + int(strLen)
	if end > len(buf) {
		return "", 0, apperr.New(apperr.ProtocolMalformed, "string exceeds buffer")
	}
	return string(buf[start:end]), lenBytes + int(strLen), nil
}

// WriteString encodes a Minecraft string.
func WriteString(buf []byte, s string) []byte {
	buf = WriteVarInt(buf, int32(len(s)))
	return append(buf, s...)
}
