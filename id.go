package treelog

import (
	"crypto/rand"
	"encoding/hex"
)

// idHexLength is the length, in hex characters, of a branch id: 24 lowercase
// hex characters derived from a random 128-bit value, truncated. Collisions
// are not checked; at this system's scale they are not a practical concern.
const idHexLength = 24

func newBranchID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("treelog: failed to read random bytes for branch id: " + err.Error())
	}
	return hex.EncodeToString(buf)[:idHexLength]
}
