package conversations

import (
	"crypto/rand"
	"math/big"
)

const (
	protocolAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// ProtocolNumberLength is the fixed size of a protocol number.
	ProtocolNumberLength = 10
	// MaxProtocolAttempts bounds regeneration on uniqueness collisions.
	MaxProtocolAttempts = 10
)

// ProtocolGenerator produces candidate protocol numbers.
type ProtocolGenerator func() (string, error)

// NewProtocolNumber draws ProtocolNumberLength characters uniformly from [A-Z0-9].
func NewProtocolNumber() (string, error) {
	alphabetSize := big.NewInt(int64(len(protocolAlphabet)))
	buffer := make([]byte, ProtocolNumberLength)
	for index := range buffer {
		position, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		buffer[index] = protocolAlphabet[position.Int64()]
	}
	return string(buffer), nil
}

// ValidProtocolNumber reports whether value has the protocol number shape.
func ValidProtocolNumber(value string) bool {
	if len(value) != ProtocolNumberLength {
		return false
	}
	for _, character := range value {
		if (character < 'A' || character > 'Z') && (character < '0' || character > '9') {
			return false
		}
	}
	return true
}
