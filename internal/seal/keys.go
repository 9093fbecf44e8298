package seal

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// Creates asymmetric key pair using x25519
func GenerateKey() (private, public []byte, err error) {
	private = make([]byte, KeyLen)
	_, err = rand.Read(private)
	if err != nil {
		err = fmt.Errorf("failed to generate random private key: %w", err)
		return
	}

	public, err = curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		err = fmt.Errorf("failed to generate public key: %w", err)
		return
	}
	return
}

// Decodes a base64 x25519 key as printed by the keygen command
func ParseKey(text string) (key []byte, err error) {
	key, err = base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		err = fmt.Errorf("invalid base64 key: %w", err)
		return
	}
	if len(key) != KeyLen {
		err = fmt.Errorf("%w: %d bytes", ErrBadKey, len(key))
		key = nil
		return
	}
	return
}

func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// Ephemeral key pair per envelope, returns the shared secret and the ephemeral public key
func sharedSecret(publicKey []byte) (secret, ephemeralPublic []byte, err error) {
	ephemeralPriv := make([]byte, KeyLen)
	defer memzero(ephemeralPriv)
	_, err = rand.Read(ephemeralPriv)
	if err != nil {
		err = fmt.Errorf("failed to generate ephemeral private key: %w", err)
		return
	}

	ephemeralPublic, err = curve25519.X25519(ephemeralPriv, curve25519.Basepoint)
	if err != nil {
		err = fmt.Errorf("failed to generate ephemeral public key: %w", err)
		return
	}

	secret, err = curve25519.X25519(ephemeralPriv, publicKey)
	if err != nil {
		err = fmt.Errorf("failed to compute shared secret: %w", err)
		return
	}
	return
}
