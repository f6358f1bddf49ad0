package links

import (
	"crypto/rand"
)

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// MaxGenerateAttempts bounds the insert-retry loop on address collisions.
const MaxGenerateAttempts = 10

type CryptoCodeGenerator struct{}

func NewCryptoCodeGenerator() *CryptoCodeGenerator { return &CryptoCodeGenerator{} }

// maxRandByte is the largest multiple of the alphabet size that fits in a
// byte. Bytes at or above it are discarded rather than taken modulo the
// alphabet, which would overweight the first few characters.
const maxRandByte = 256 - 256%len(codeAlphabet)

func (g *CryptoCodeGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		length = 6
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxRandByte {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
