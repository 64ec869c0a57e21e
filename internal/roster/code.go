package roster

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet drops lookalike characters (0/O, 1/I) so codes survive being
// read aloud or written on a whiteboard.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// NewClassCode generates a short join code. Uniqueness is enforced by the
// classes.code constraint; callers retry on collision.
func NewClassCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("code random source: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
