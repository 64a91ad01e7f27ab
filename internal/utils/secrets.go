package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// ReferenceAlphabet is the character set of booking reference codes
const ReferenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ReferenceLength is the number of characters in a booking reference code
const ReferenceLength = 6

var referenceAlphabetSize = big.NewInt(int64(len(ReferenceAlphabet)))

// GenerateReferenceCode draws a booking reference uniformly from
// [A-Z0-9]{6}. Uniqueness is the caller's job.
func GenerateReferenceCode() (string, error) {
	code := make([]byte, ReferenceLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, referenceAlphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate reference code: %w", err)
		}
		code[i] = ReferenceAlphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateSecret returns a hex-encoded random secret of the given byte length
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
