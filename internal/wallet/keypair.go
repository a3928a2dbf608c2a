package wallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ParsePrivateKey parses a Solana private key from either base58 or JSON array format.
// Supported formats:
//   - Base58: "5Kd7..." (standard format from solana-keygen)
//   - JSON array: "[1,2,3,...,64]" (64 bytes, Phantom wallet export format)
func ParsePrivateKey(keyStr string) (solana.PrivateKey, error) {
	if keyStr == "" {
		return solana.PrivateKey{}, fmt.Errorf("private key string is empty")
	}

	keyStr = strings.TrimSpace(keyStr)

	// Try base58 format first (most common)
	if !strings.HasPrefix(keyStr, "[") {
		privateKey, err := solana.PrivateKeyFromBase58(keyStr)
		if err != nil {
			return solana.PrivateKey{}, fmt.Errorf("invalid base58 private key: %w", err)
		}
		return privateKey, nil
	}

	return parsePrivateKeyArray(keyStr)
}

// parsePrivateKeyArray parses a private key from JSON array format: [1,2,3,...,64]
func parsePrivateKeyArray(keyStr string) (solana.PrivateKey, error) {
	if !strings.HasPrefix(keyStr, "[") || !strings.HasSuffix(keyStr, "]") {
		return solana.PrivateKey{}, fmt.Errorf("private key array must be in JSON format: [1,2,3,...]")
	}

	arrayContent := keyStr[1 : len(keyStr)-1]
	parts := strings.Split(arrayContent, ",")

	if len(parts) != 64 {
		return solana.PrivateKey{}, fmt.Errorf("private key must be a 64-byte array, got %d bytes", len(parts))
	}

	var keyBytes [64]byte
	for i, part := range parts {
		part = strings.TrimSpace(part)
		val, err := strconv.Atoi(part)
		if err != nil {
			return solana.PrivateKey{}, fmt.Errorf("invalid byte value at position %d: %s (%w)", i, part, err)
		}
		if val < 0 || val > 255 {
			return solana.PrivateKey{}, fmt.Errorf("byte value at position %d out of range (0-255): %d", i, val)
		}
		keyBytes[i] = byte(val)
	}

	return solana.PrivateKey(keyBytes[:]), nil
}
