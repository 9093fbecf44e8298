// Sealed envelopes for frames sent to peers that advertise the sealed capability
package seal

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

type Suite struct {
	Name           string
	KeySize        int
	NonceSize      int
	CipherOverhead int
}

const (
	SuiteX25519ChaCha uint8 = 1

	// Byte length for ID in envelopes
	SuiteIDLen int = 1

	// Fixed key length for x25519
	KeyLen int = 32
)

var (
	ErrUnknownSuite  = errors.New("unknown crypto suite")
	ErrShortEnvelope = errors.New("envelope too short")
	ErrBadKey        = errors.New("invalid key length")
)

var suites = map[uint8]Suite{
	SuiteX25519ChaCha: {
		Name:           "x25519-hkdf-chacha20poly1305",
		KeySize:        chacha20poly1305.KeySize,
		NonceSize:      chacha20poly1305.NonceSize,
		CipherOverhead: chacha20poly1305.Overhead,
	},
}

// Query crypto suite
func GetSuite(id uint8) (suite Suite, ok bool) {
	suite, ok = suites[id]
	return
}

// Bytes an envelope adds around a frame
func Overhead(id uint8) (overhead int) {
	suite, ok := suites[id]
	if !ok {
		return
	}
	overhead = SuiteIDLen + KeyLen + suite.NonceSize + suite.CipherOverhead
	return
}

func memzero(b []byte) {
	clear(b)
}
