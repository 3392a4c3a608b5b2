// Package eslcrypto provides the canonical hashing and identifier encoding
// used by the settlement message schema. The encoding is length-prefixed and
// order-sensitive: two digests collide only if every field matches
// byte-for-byte, so a signature produced for one table, settlement, chain or
// ledger deployment cannot be replayed against another.
package eslcrypto

import (
	"crypto/sha256"
	"fmt"
	"hash"
)

var digestPrefix = []byte("ESLv1|digest|")

func updateLenBytes(h hash.Hash, b []byte) {
	h.Write(u32le(uint32(len(b))))
	h.Write(b)
}

// Digest hashes a domain-separated, length-prefixed sequence of messages.
// Nil messages are rejected so that "absent" and "empty" stay distinguishable
// at call sites.
func Digest(domainSep string, msgs ...[]byte) ([]byte, error) {
	h := sha256.New()
	h.Write(digestPrefix)
	updateLenBytes(h, []byte(domainSep))
	for _, m := range msgs {
		if m == nil {
			return nil, fmt.Errorf("digest: nil msg")
		}
		updateLenBytes(h, m)
	}
	return h.Sum(nil), nil
}
