package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Example.com":        "example.com",
		" example.com ":      "example.com",
		"example.com.":       "example.com",
		"example.comFML3":    "example.com",
		"exa!mple.com":       "example.com",
		"EXAMPLE.COM.":       "example.com",
		"play.example.comFML": "play.example.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Example.com.", "play.EXAMPLE.comFML12", "  weird!! .com  "}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}
