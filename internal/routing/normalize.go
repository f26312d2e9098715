package routing

import (
	"regexp"
	"strings"
)

var (
	disallowedChars = regexp.MustCompile(`[^A-Za-z0-9.\-]`)
	fmlSuffix       = regexp.MustCompile(`FML\d*$`)
)

// Normalize applies the domain-normalisation rule shared by every
// routing-table read and write: strip characters outside
// [A-Za-z0-9.-], strip a trailing "FML\d*" suffix (Forge's handshake
// marker), trim whitespace, strip trailing dots, lowercase. The
// result is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(domain string) string {
	d := strings.TrimSpace(domain)
	d = disallowedChars.ReplaceAllString(d, "")
	d = fmlSuffix.ReplaceAllString(d, "")
	d = strings.TrimRight(d, ".")
	return strings.ToLower(d)
}
