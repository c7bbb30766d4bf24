package receipt

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	codeChars      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength     = 6
	shortPrefixLen = 8
	DefaultPrefix  = "KOB"
)

var randReader io.Reader = rand.Reader

// ResolveIdentifier returns the first non-blank candidate, or the fallback's value
// when every candidate is blank.
func ResolveIdentifier(candidates []string, fallback func() string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	if fallback == nil {
		return ""
	}
	return fallback()
}

// NewReceiptCode generates "<prefix>-XXXXXX" with six random base36 uppercase characters
func NewReceiptCode(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "-" + randomCode(codeLength)
}

// ShortPrefix truncates an id (usually a checkout session id) to a fixed short length
func ShortPrefix(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= shortPrefixLen {
		return id
	}
	return id[:shortPrefixLen]
}

// randomCode draws each character uniformly from codeChars. A failing system
// random source is unrecoverable, so it panics.
func randomCode(length int) string {
	base := big.NewInt(int64(len(codeChars)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(randReader, base)
		if err != nil {
			panic(fmt.Sprintf("receipt: reading random source: %v", err))
		}
		out[i] = codeChars[n.Int64()]
	}
	return string(out)
}
