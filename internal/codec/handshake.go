package codec

import "github.com/codingbear/mcrouter/internal/apperr"

// Packet ids for the only two modern pre-play packets this proxy
// ever needs to recognise.
const (
	PacketHandshake = 0x00
	PacketLoginStart = 0x00
)

// Next-state values carried by the handshake packet.
const (
	NextStateStatus = 1
	NextStateLogin  = 2
)

// Handshake is the parsed content of the client's handshake packet.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string // raw, not yet normalised
	ServerPort      uint16
	NextState       int32
}

// Classify inspects buf (with the injected-IP header already
// stripped) and reports whether it looks like a modern handshake or
// ping: it decodes as "VarInt packetLength, VarInt packetId" with
// packetId in {0x00, 0x01}. Any other shape, notably a leading 0xFE,
// is the legacy (pre-Netty) ping and is rejected.
func Classify(buf []byte) (ok bool, err error) {
	_, lenBytes, err := ReadVarInt(buf, 0)
	if err != nil {
		return false, err
	}
	pktID, _, err := ReadVarInt(buf, lenBytes)
	if err != nil {
		return false, err
	}
	if pktID != 0x00 && pktID != 0x01 {
		return false, nil
	}
	return true, nil
}

// ParseHandshake decodes the handshake packet (packet id 0x00) from
// buf at offset 0. It returns the parsed fields and the offset of the
// first byte following the handshake packet (lenBytes + packetLength),
// so the caller can continue parsing Login Start from there.
func ParseHandshake(buf []byte) (hs Handshake, nextOffset int, err error) {
	pktLen, lenBytes, err := ReadVarInt(buf, 0)
	if err != nil {
		return Handshake{}, 0, err
	}
	if pktLen < 0 {
		return Handshake{}, 0, apperr.New(apperr.ProtocolMalformed, "negative packet length")
	}
	bodyEnd := lenBytes + int(pktLen)
	if bodyEnd > len(buf) {
		return Handshake{}, 0, apperr.New(apperr.ProtocolMalformed, "handshake body exceeds buffer")
	}

	off := lenBytes
	pktID, n, err := ReadVarInt(buf, off)
	if err != nil {
		return Handshake{}, 0, err
	}
	off += n
	if pktID != PacketHandshake {
		return Handshake{}, 0, apperr.New(apperr.ProtocolMalformed, "expected handshake packet id 0x00")
	}

	protoVersion, n, err := ReadVarInt(buf, off)
	if err != nil {
		return Handshake{}, 0, err
	}
	off += n

	addr, n, err := ReadString(buf, off)
	if err != nil {
		return Handshake{}, 0, err
	}
	off += n

	if off+2 > bodyEnd {
		return Handshake{}, 0, apperr.New(apperr.ProtocolMalformed, "handshake missing port")
	}
	port := uint16(buf[off])<<8 | uint16(buf[off+1])
	off += 2

	nextState, n, err := ReadVarInt(buf, off)
	if err != nil {
		return Handshake{}, 0, err
	}
	off += n
	_ = off // remaining bytes within the declared packet length (if any) are ignored

	return Handshake{
		ProtocolVersion: protoVersion,
		ServerAddress:   addr,
		ServerPort:      port,
		NextState:       nextState,
	}, bodyEnd, nil
}

// LoginStart is the parsed content of the Login Start packet.
type LoginStart struct {
	Username string
}

// ParseLoginStart decodes a Login Start packet (packet id 0x00) from
// buf at offset, returning the username and the offset following the
// packet.
func ParseLoginStart(buf []byte, offset int) (ls LoginStart, nextOffset int, err error) {
	pktLen, lenBytes, err := ReadVarInt(buf, offset)
	if err != nil {
		return LoginStart{}, 0, err
	}
	if pktLen < 0 {
		return LoginStart{}, 0, apperr.New(apperr.ProtocolMalformed, "negative packet length")
	}
	off := offset + lenBytes
	bodyEnd := off + int(pktLen)
	if bodyEnd > len(buf) {
		return LoginStart{}, 0, apperr.New(apperr.ProtocolMalformed, "login start body exceeds buffer")
	}

	pktID, n, err := ReadVarInt(buf, off)
	if err != nil {
		return LoginStart{}, 0, err
	}
	off += n
	if pktID != PacketLoginStart {
		return LoginStart{}, 0, apperr.New(apperr.ProtocolMalformed, "expected login start packet id 0x00")
	}

	username, n, err := ReadString(buf, off)
	if err != nil {
		return LoginStart{}, 0, err
	}
	off += n

	return LoginStart{Username: username}, bodyEnd, nil
}
