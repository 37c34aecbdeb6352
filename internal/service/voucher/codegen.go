package voucher

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"mnetifi-service/internal/domain/voucher"
)

// alphabet leaves out 0/O, 1/I/L so codes survive being read aloud or
// copied from a printed card.
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// NewCode returns prefix followed by voucher.CodeLength random characters.
func NewCode(prefix string) (string, error) {
	buf := make([]byte, voucher.CodeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate voucher code: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}

// NewCodes returns n distinct codes.
func NewCodes(prefix string, n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	for len(codes) < n {
		c, err := NewCode(prefix)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes, nil
}
