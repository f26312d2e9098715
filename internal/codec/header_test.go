package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripInjectedIP(t *testing.T) {
	buf := append([]byte("MCIP"), byte(9))
	buf = append(buf, []byte("127.0.0.1")...)
	buf = append(buf, []byte{0xAA, 0xBB}...)

	ip, rest, err := StripInjectedIP(buf)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)
	assert.Equal(t, []byte{0xAA, 0xBB}, rest)
}

func TestStripInjectedIPMissingMarker(t *testing.T) {
	_, _, err := StripInjectedIP([]byte("GET /"))
	assert.Error(t, err)
}

func TestStripInjectedIPShortHeader(t *testing.T) {
	buf := append([]byte("MCIP"), byte(9))
	buf = append(buf, []byte("127.0")...) // declares 9, only 5 present
	_, _, err := StripInjectedIP(buf)
	assert.Error(t, err)
}
