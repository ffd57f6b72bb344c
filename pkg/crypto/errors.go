package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPassphrase is returned when a key pair is requested without a passphrase.
	ErrEmptyPassphrase = errors.New("private key passphrase is required")

	// ErrMalformedKey indicates PEM content that is missing, of the wrong type or undecodable.
	ErrMalformedKey = errors.New("malformed key material")

	// ErrKeyMismatch indicates the private key on disk does not belong to the public key on disk.
	ErrKeyMismatch = errors.New("private key does not match public key")

	// ErrKeyTooSmall is returned when generating a key below MinKeyBits.
	ErrKeyTooSmall = errors.New("rsa modulus too small")

	// ErrInvalidPublicKey indicates a peer public key that cannot be used for encryption.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrPlaintextTooLong indicates a plaintext above the key's OAEP payload bound.
	ErrPlaintextTooLong = errors.New("plaintext exceeds key payload size")

	// ErrMalformedCiphertext indicates a ciphertext that is not valid base64.
	ErrMalformedCiphertext = errors.New("ciphertext is not valid base64")

	// ErrCiphertextSize indicates a ciphertext whose length differs from the key size.
	ErrCiphertextSize = errors.New("ciphertext size does not match key size")
)

// KeyLoadError reports key files that exist but cannot be used: unreadable files,
// malformed PEM, or a passphrase that does not unwrap the private key.
type KeyLoadError struct {
	Path string
	Err  error
}

func (e *KeyLoadError) Error() string {
	return fmt.Sprintf("failed to load key %s: %v", e.Path, e.Err)
}

func (e *KeyLoadError) Unwrap() error { return e.Err }

// KeyPersistError reports a freshly generated key pair that could not be written to disk.
// The key pair is discarded when this happens.
type KeyPersistError struct {
	Path string
	Err  error
}

func (e *KeyPersistError) Error() string {
	return fmt.Sprintf("failed to persist key %s: %v", e.Path, e.Err)
}

func (e *KeyPersistError) Unwrap() error { return e.Err }

// EncryptError wraps any failure to encrypt a payload for a recipient.
type EncryptError struct {
	Err error
}

func (e *EncryptError) Error() string {
	return fmt.Sprintf("failed to encrypt message: %v", e.Err)
}

func (e *EncryptError) Unwrap() error { return e.Err }

// DecryptError wraps any failure to decrypt an inbound payload.
type DecryptError struct {
	Err error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("failed to decrypt message: %v", e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }
