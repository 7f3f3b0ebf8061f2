package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix leaves room for changing the
// algorithm without colliding with stored digests.
const (
	DomainValue = "tapflow/value/v1"
	DomainTrail = "tapflow/trail/v1"
)

// Digest computes SHA-256 over domain + 0x00 + data.
// The null separator keeps the domain/data boundary unambiguous.
func Digest(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValueDigest returns the digest of v's canonical form.
func ValueDigest(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("value digest: %w", err)
	}
	return Digest(DomainValue, data), nil
}
