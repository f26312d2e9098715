package codec

import "github.com/codingbear/mcrouter/internal/apperr"

// ipMarker is the 4-byte ASCII marker that prefixes the injected
// client-IP header.
const ipMarker = "MCIP"

// StripInjectedIP parses the mandatory injected client-IP header from
// the front of buf: 4-byte marker "MCIP", 1 length byte L, then L
// ASCII bytes holding the real client IP. It returns the IP and the
// residual slice positioned immediately after the header.
func StripInjectedIP(buf []byte) (ip string, rest []byte, err error) {
	if len(buf) < 4 || string(buf[:4]) != ipMarker {
		return "", nil, apperr.New(apperr.ProtocolMalformed, "MISSING_MARKER")
	}
	if len(buf) < 5 {
		return "", nil, apperr.New(apperr.ProtocolMalformed, "SHORT_HEADER")
	}
	l := int(buf[4])
	if len(buf) < 5+l {
		return "", nil, apperr.New(apperr.ProtocolMalformed, "SHORT_HEADER")
	}
	ip = string(buf[5 : 5+l])
	return ip, buf[5+l:], nil
}
