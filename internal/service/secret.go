package service

import (
	"crypto/rand"
	"fmt"
)

const (
	// SecretKeyLength is the length of a product instance shared secret.
	SecretKeyLength = 10

	secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Bytes at or above this bound are rejected so every symbol is equally likely.
	secretRejectBound = 256 - 256%len(secretAlphabet)
)

// GenerateSecretKey returns a random alphanumeric shared secret.
func GenerateSecretKey() (string, error) {
	out := make([]byte, 0, SecretKeyLength)
	buf := make([]byte, SecretKeyLength*2)

	for len(out) < SecretKeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate secret key: %w", err)
		}
		for _, b := range buf {
			if int(b) >= secretRejectBound {
				continue
			}
			out = append(out, secretAlphabet[int(b)%len(secretAlphabet)])
			if len(out) == SecretKeyLength {
				break
			}
		}
	}
	return string(out), nil
}
