package links

import (
	"strings"
	"testing"
)

func TestCryptoCodeGenerator_Length(t *testing.T) {
	gen := NewCryptoCodeGenerator()

	for _, length := range []int{4, 6, 12, 32} {
		code, err := gen.Generate(length)
		if err != nil {
			t.Fatalf("Generate(%d): %v", length, err)
		}
		if len(code) != length {
			t.Errorf("Generate(%d) produced %d characters", length, len(code))
		}
	}
}

func TestCryptoCodeGenerator_DefaultLength(t *testing.T) {
	gen := NewCryptoCodeGenerator()

	code, err := gen.Generate(0)
	if err != nil {
		t.Fatalf("Generate(0): %v", err)
	}
	if len(code) != 6 {
		t.Errorf("default length = %d, want 6", len(code))
	}
}

func TestCryptoCodeGenerator_Alphabet(t *testing.T) {
	gen := NewCryptoCodeGenerator()

	for range 50 {
		code, err := gen.Generate(8)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
	}
}

func TestCryptoCodeGenerator_RejectionThreshold(t *testing.T) {
	// The sampling range must be an exact multiple of the alphabet, or the
	// modulo step would overweight the characters at its start.
	if maxRandByte%len(codeAlphabet) != 0 {
		t.Errorf("threshold %d is not a multiple of the alphabet size %d", maxRandByte, len(codeAlphabet))
	}
	if maxRandByte <= 0 || maxRandByte > 256 {
		t.Errorf("threshold %d outside the byte range", maxRandByte)
	}
}

func TestCryptoCodeGenerator_Varies(t *testing.T) {
	gen := NewCryptoCodeGenerator()

	seen := make(map[string]struct{})
	for range 100 {
		code, err := gen.Generate(8)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		seen[code] = struct{}{}
	}
	// 100 draws from a 62^8 space colliding would mean a broken source.
	if len(seen) < 100 {
		t.Errorf("only %d distinct codes out of 100 draws", len(seen))
	}
}
