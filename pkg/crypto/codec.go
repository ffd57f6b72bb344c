package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultKeyCacheSize bounds the number of parsed peer keys a Codec keeps.
const DefaultKeyCacheSize = 256

// OAEP digest. SHA-1 is the default of the common RSA-OAEP encoders (OpenSSL, Node),
// which keeps ciphertexts interchangeable with them.
var oaepHash = sha1.New

// MaxPlaintextSize is the largest plaintext a single OAEP block can carry for pub.
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*oaepHash().Size() - 2
}

// Encrypt encrypts plaintext for the holder of recipientPEM and returns base64.
// Ciphertexts are randomized: encrypting the same plaintext twice gives different output.
func Encrypt(plaintext, recipientPEM []byte) (string, error) {
	pub, err := ParsePublicKey(recipientPEM)
	if err != nil {
		return "", &EncryptError{Err: err}
	}
	return encryptWith(pub, plaintext)
}

// Decrypt decodes a base64 ciphertext and decrypts it with the passphrase-protected
// private key in privatePEM.
func Decrypt(ciphertext string, privatePEM []byte, passphrase string) ([]byte, error) {
	raw, err := decodeCiphertext(ciphertext)
	if err != nil {
		return nil, err
	}
	priv, err := unwrapPrivateKey(privatePEM, passphrase)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}
	return decryptWith(priv, raw)
}

func encryptWith(pub *rsa.PublicKey, plaintext []byte) (string, error) {
	if limit := MaxPlaintextSize(pub); len(plaintext) > limit {
		return "", &EncryptError{Err: fmt.Errorf("%w: %d bytes, limit %d", ErrPlaintextTooLong, len(plaintext), limit)}
	}
	ciphertext, err := rsa.EncryptOAEP(oaepHash(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return "", &EncryptError{Err: err}
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decodeCiphertext(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, &DecryptError{Err: fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)}
	}
	return raw, nil
}

func decryptWith(priv *rsa.PrivateKey, raw []byte) ([]byte, error) {
	if len(raw) != priv.Size() {
		return nil, &DecryptError{Err: fmt.Errorf("%w: got %d bytes, want %d", ErrCiphertextSize, len(raw), priv.Size())}
	}
	plaintext, err := rsa.DecryptOAEP(oaepHash(), nil, priv, raw, nil)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}
	return plaintext, nil
}

// Codec encrypts for peers whose keys arrive as PEM blobs, caching parsed keys by
// content hash so repeated sends skip parsing. Safe for concurrent use.
type Codec struct {
	keys *lru.Cache[[sha256.Size]byte, *rsa.PublicKey]
}

// NewCodec creates a Codec caching up to size parsed keys.
func NewCodec(size int) (*Codec, error) {
	if size <= 0 {
		size = DefaultKeyCacheSize
	}
	keys, err := lru.New[[sha256.Size]byte, *rsa.PublicKey](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}
	return &Codec{keys: keys}, nil
}

// Encrypt is like the package-level Encrypt but reuses parsed keys.
func (c *Codec) Encrypt(plaintext, recipientPEM []byte) (string, error) {
	pub, err := c.publicKey(recipientPEM)
	if err != nil {
		return "", &EncryptError{Err: err}
	}
	return encryptWith(pub, plaintext)
}

func (c *Codec) publicKey(data []byte) (*rsa.PublicKey, error) {
	sum := keyDigest(data)
	if pub, ok := c.keys.Get(sum); ok {
		return pub, nil
	}
	pub, err := ParsePublicKey(data)
	if err != nil {
		return nil, err
	}
	c.keys.Add(sum, pub)
	return pub, nil
}

func keyDigest(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}
