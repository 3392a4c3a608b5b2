package eslcrypto

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// IDSize is the byte length of table and settlement identifiers.
const IDSize = 32

// ParseID32 decodes an opaque 32-byte identifier from its hex form.
// A leading 0x and mixed case are accepted.
func ParseID32(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("id: empty string")
	}
	ss := strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(ss)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	if len(b) != IDSize {
		return nil, fmt.Errorf("id: got %d bytes, want %d", len(b), IDSize)
	}
	return b, nil
}

// IDString renders an identifier in its canonical lowercase 0x-hex form,
// the form used as a state key.
func IDString(b []byte) string {
	return "0x" + strings.ToLower(hex.EncodeToString(b))
}
