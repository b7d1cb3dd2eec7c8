package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func ShortenString(s string, l int) string {
	if len(s) > l && l != 0 {
		return fmt.Sprintf("%s...", s[:l])
	}
	return s
}

// RandomString returns the given prefix with a short random hex suffix,
// eg. for debug file names.
func RandomString(prefix string) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	if prefix == "" {
		return hex.EncodeToString(b), nil
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b)), nil
}
