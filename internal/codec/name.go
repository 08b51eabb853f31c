package codec

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// MaxLabelLen is the DNS wire limit on a single label.
const MaxLabelLen = 63

// MaxNameLen is the DNS wire limit on a fully-qualified name.
const MaxNameLen = 255

// splitIntoLabels breaks s into dot-joined chunks of at most maxLen bytes.
func splitIntoLabels(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i += maxLen {
		if i > 0 {
			b.WriteByte('.')
		}
		end := i + maxLen
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}

// joinLabels reverses splitIntoLabels: it concatenates label text, stripping
// the dots that splitIntoLabels introduced.
func joinLabels(labels []string) string {
	return strings.Join(labels, "")
}

// randomNonceLabel returns a short random hex label used to cache-bust
// recursive resolvers: two outbound queries for the same tunnel packet must
// never resolve to the same QNAME, or a resolver may serve a stale cached
// answer instead of forwarding the retransmit.
func randomNonceLabel() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure is effectively unrecoverable on any platform
		// this tunnel runs on; fall back to a fixed, still-valid label
		// rather than returning an error from every encode call.
		return "000000"
	}
	return hex.EncodeToString(b)
}
