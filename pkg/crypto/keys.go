package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/youmark/pkcs8"
)

const (
	// PublicKeyFile holds the cleartext SPKI public key.
	PublicKeyFile = "public.pem"
	// PrivateKeyFile holds the passphrase-encrypted PKCS#8 private key.
	PrivateKeyFile = "private.pem"

	DefaultKeyBits = 4096
	MinKeyBits     = 2048

	publicKeyPEMType           = "PUBLIC KEY"
	rsaPublicKeyPEMType        = "RSA PUBLIC KEY"
	encryptedPrivateKeyPEMType = "ENCRYPTED PRIVATE KEY"

	pbkdf2Iterations = 10000
	pbkdf2SaltSize   = 16
)

// KeyPair is a node's long-lived overlay identity. The private half stays encrypted
// until Unlock succeeds; the unwrapped key is then cached for the process lifetime.
type KeyPair struct {
	publicPEM   []byte
	privatePEM  []byte
	passphrase  string
	public      *rsa.PublicKey
	privatePath string

	unlockOnce sync.Once
	private    *rsa.PrivateKey
	unlockErr  error
}

// Option configures LoadOrGenerate.
type Option func(*options)

type options struct {
	bits int
}

// WithKeyBits sets the modulus size used when a new key pair has to be generated.
func WithKeyBits(bits int) Option {
	return func(o *options) {
		o.bits = bits
	}
}

// LoadOrGenerate loads the key pair stored in dir, or generates and persists a new one
// when either file is missing. The passphrase is only checked by Unlock.
func LoadOrGenerate(dir, passphrase string, opts ...Option) (*KeyPair, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	o := options{bits: DefaultKeyBits}
	for _, opt := range opts {
		opt(&o)
	}

	publicPath := filepath.Join(dir, PublicKeyFile)
	privatePath := filepath.Join(dir, PrivateKeyFile)

	havePublic, err := fileExists(publicPath)
	if err != nil {
		return nil, &KeyLoadError{Path: publicPath, Err: err}
	}
	havePrivate, err := fileExists(privatePath)
	if err != nil {
		return nil, &KeyLoadError{Path: privatePath, Err: err}
	}

	if havePublic && havePrivate {
		return loadKeyPair(publicPath, privatePath, passphrase)
	}

	log.Infow("key pair not found, generating", "dir", dir, "bits", o.bits)
	kp, err := generateKeyPair(o.bits, passphrase)
	if err != nil {
		return nil, err
	}
	kp.privatePath = privatePath
	if err := persistKeyPair(dir, kp.publicPEM, kp.privatePEM); err != nil {
		return nil, err
	}
	log.Infow("key pair written", "dir", dir, "fingerprint", kp.Fingerprint())
	return kp, nil
}

func loadKeyPair(publicPath, privatePath, passphrase string) (*KeyPair, error) {
	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, &KeyLoadError{Path: publicPath, Err: err}
	}
	privatePEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, &KeyLoadError{Path: privatePath, Err: err}
	}

	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return nil, &KeyLoadError{Path: publicPath, Err: err}
	}

	// Private keys are never accepted unencrypted.
	block, _ := pem.Decode(privatePEM)
	if block == nil || block.Type != encryptedPrivateKeyPEMType {
		return nil, &KeyLoadError{Path: privatePath, Err: ErrMalformedKey}
	}

	log.Infow("using existing key pair", "path", publicPath)
	return &KeyPair{
		publicPEM:   publicPEM,
		privatePEM:  privatePEM,
		passphrase:  passphrase,
		public:      pub,
		privatePath: privatePath,
	}, nil
}

func generateKeyPair(bits int, passphrase string) (*KeyPair, error) {
	if bits < MinKeyBits {
		return nil, fmt.Errorf("%w: %d bits, minimum %d", ErrKeyTooSmall, bits, MinKeyBits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	privateDER, err := pkcs8.MarshalPrivateKey(priv, []byte(passphrase), &pkcs8.Opts{
		Cipher: pkcs8.AES256CBC,
		KDFOpts: pkcs8.PBKDF2Opts{
			SaltSize:       pbkdf2SaltSize,
			IterationCount: pbkdf2Iterations,
			HMACHash:       stdcrypto.SHA256,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	kp := &KeyPair{
		publicPEM:  pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: publicDER}),
		privatePEM: pem.EncodeToMemory(&pem.Block{Type: encryptedPrivateKeyPEMType, Bytes: privateDER}),
		passphrase: passphrase,
		public:     &priv.PublicKey,
	}
	kp.unlockOnce.Do(func() { kp.private = priv })
	return kp, nil
}

// persistKeyPair writes both halves through temp files so a failure never leaves
// a complete pair behind.
func persistKeyPair(dir string, publicPEM, privatePEM []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &KeyPersistError{Path: dir, Err: err}
	}
	publicPath := filepath.Join(dir, PublicKeyFile)
	privatePath := filepath.Join(dir, PrivateKeyFile)

	privateTmp, err := writeTemp(dir, PrivateKeyFile, privatePEM, 0o600)
	if err != nil {
		return &KeyPersistError{Path: privatePath, Err: err}
	}
	publicTmp, err := writeTemp(dir, PublicKeyFile, publicPEM, 0o644)
	if err != nil {
		_ = os.Remove(privateTmp)
		return &KeyPersistError{Path: publicPath, Err: err}
	}

	if err := os.Rename(privateTmp, privatePath); err != nil {
		_ = os.Remove(privateTmp)
		_ = os.Remove(publicTmp)
		return &KeyPersistError{Path: privatePath, Err: err}
	}
	if err := os.Rename(publicTmp, publicPath); err != nil {
		_ = os.Remove(publicTmp)
		_ = os.Remove(privatePath)
		return &KeyPersistError{Path: publicPath, Err: err}
	}
	return nil
}

func writeTemp(dir, name string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		return fail(err)
	}
	if err := f.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	// A path component that is a regular file means the key cannot exist there either;
	// creating the directory later reports the real problem.
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return false, nil
	}
	return false, err
}

// Unlock unwraps the private key with the configured passphrase. A wrong passphrase
// or corrupt key surfaces here as a *KeyLoadError; the outcome is cached.
func (k *KeyPair) Unlock() (*rsa.PrivateKey, error) {
	k.unlockOnce.Do(func() {
		priv, err := unwrapPrivateKey(k.privatePEM, k.passphrase)
		if err != nil {
			k.unlockErr = &KeyLoadError{Path: k.privatePath, Err: err}
			return
		}
		if !priv.PublicKey.Equal(k.public) {
			k.unlockErr = &KeyLoadError{Path: k.privatePath, Err: ErrKeyMismatch}
			return
		}
		k.private = priv
	})
	return k.private, k.unlockErr
}

// PublicKeyPEM returns a copy of the PEM-encoded public key, as announced to peers.
func (k *KeyPair) PublicKeyPEM() []byte {
	return append([]byte(nil), k.publicPEM...)
}

// PublicKey returns the parsed public key.
func (k *KeyPair) PublicKey() *rsa.PublicKey {
	return k.public
}

// Fingerprint is the hex SHA-256 of the DER public key.
func (k *KeyPair) Fingerprint() string {
	der, err := x509.MarshalPKIXPublicKey(k.public)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// Decrypt decodes and decrypts a ciphertext addressed to this key pair.
func (k *KeyPair) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := decodeCiphertext(ciphertext)
	if err != nil {
		return nil, err
	}
	priv, err := k.Unlock()
	if err != nil {
		return nil, &DecryptError{Err: err}
	}
	return decryptWith(priv, raw)
}

// ParsePublicKey accepts SPKI ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") PEM blocks.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidPublicKey)
	}
	switch block.Type {
	case publicKeyPEMType:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an rsa key", ErrInvalidPublicKey)
		}
		return pub, nil
	case rsaPublicKeyPEMType:
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidPublicKey, block.Type)
	}
}

func unwrapPrivateKey(privatePEM []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privatePEM)
	if block == nil || block.Type != encryptedPrivateKeyPEMType {
		return nil, ErrMalformedKey
	}
	priv, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap private key: %w", err)
	}
	return priv, nil
}
