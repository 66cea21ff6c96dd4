package library

import (
	"crypto/sha256"
	"fmt"
)

// Sha256Sum hashes a string or byte slice and returns the hex digest.
func Sha256Sum(data interface{}) Sha256 {
	var b []byte
	switch d := data.(type) {
	case string:
		b = []byte(d)
	case []byte:
		b = d
	default:
		LogCLI("attempted to hash non-string or non-[]byte", 0)
	}
	h := sha256.Sum256(b)
	return fmt.Sprintf("%x", h)
}
