package seal

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Encrypts a frame for the holder of publicKey.
// Layout: suiteID | ephemeral public key | nonce | ciphertext
func Seal(frame, publicKey []byte) (envelope []byte, err error) {
	if len(publicKey) != KeyLen {
		err = fmt.Errorf("%w: public key is %d bytes", ErrBadKey, len(publicKey))
		return
	}
	suiteID := SuiteX25519ChaCha
	suite, _ := GetSuite(suiteID)

	secret, ephemeralPub, err := sharedSecret(publicKey)
	if err != nil {
		return
	}

	nonce := make([]byte, suite.NonceSize)
	_, err = rand.Read(nonce)
	if err != nil {
		err = fmt.Errorf("failed to create random nonce: %w", err)
		return
	}

	key, err := deriveKey(secret, ephemeralPub, nonce, suite)
	if err != nil {
		return
	}
	aead, err := chacha20poly1305.New(key)
	memzero(key)
	if err != nil {
		err = fmt.Errorf("failed creation of AEAD: %w", err)
		return
	}

	envelope = make([]byte, 0, Overhead(suiteID)+len(frame))
	envelope = append(envelope, suiteID)
	envelope = append(envelope, ephemeralPub...)
	envelope = append(envelope, nonce...)
	aad := append([]byte{suiteID}, ephemeralPub...)
	envelope = aead.Seal(envelope, nonce, frame, aad)
	return
}

// Decrypts an envelope with the local private key
func Open(envelope, privateKey []byte) (frame []byte, err error) {
	if len(envelope) < SuiteIDLen {
		err = ErrShortEnvelope
		return
	}
	suiteID := envelope[0]
	suite, ok := GetSuite(suiteID)
	if !ok {
		err = fmt.Errorf("%w: %d", ErrUnknownSuite, suiteID)
		return
	}
	if len(envelope) < Overhead(suiteID) {
		err = fmt.Errorf("%w: %d bytes", ErrShortEnvelope, len(envelope))
		return
	}

	offset := SuiteIDLen
	ephemeralPub := envelope[offset : offset+KeyLen]
	offset += KeyLen
	nonce := envelope[offset : offset+suite.NonceSize]
	offset += suite.NonceSize
	ciphertext := envelope[offset:]
	aad := append([]byte{suiteID}, ephemeralPub...)

	secret, err := curve25519.X25519(privateKey, ephemeralPub)
	if err != nil {
		err = fmt.Errorf("failed to recompute shared secret: %w", err)
		return
	}
	key, err := deriveKey(secret, ephemeralPub, nonce, suite)
	if err != nil {
		return
	}
	aead, err := chacha20poly1305.New(key)
	memzero(key)
	if err != nil {
		err = fmt.Errorf("failed creation of AEAD: %w", err)
		return
	}

	frame, err = aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		err = fmt.Errorf("failed decryption of cipher text: %w", err)
		return
	}
	return
}

// Salt is the hash of ephemeral public key and nonce, info is the suite name.
// Secret is zeroed after use.
func deriveKey(secret, ephemeralPub, nonce []byte, suite Suite) (key []byte, err error) {
	hasher := sha512.New()
	hasher.Write(ephemeralPub)
	hasher.Write(nonce)
	salt := hasher.Sum(nil)

	deriver := hkdf.New(sha512.New, secret, salt, []byte(suite.Name))
	key = make([]byte, suite.KeySize)
	_, err = deriver.Read(key)
	memzero(salt)
	memzero(secret)
	if err != nil {
		err = fmt.Errorf("failed to populate key with secure bytes: %w", err)
		return
	}
	return
}
