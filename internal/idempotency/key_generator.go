package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// GenerateKey hashes parts into a storage key. Each part is length-prefixed,
// so ("a:b", "c") and ("a", "b:c") never collide, and the caller scope is
// always one of the parts.
func GenerateKey(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		s := fmt.Sprint(part)
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}
