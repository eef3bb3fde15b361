package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	return Hex32(Sha256(data))
}

func Hex32(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// HasZeroPrefix reports whether the first n characters of a hex digest are all '0'.
func HasZeroPrefix(digest string, n int) bool {
	if n < 0 || len(digest) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if digest[i] != '0' {
			return false
		}
	}
	return true
}
