package libp2p

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
)

// IdentityFileName holds the host's Ed25519 key. It identifies the host on the
// libp2p network only; overlay messages are encrypted with the node's RSA keys.
const IdentityFileName = "identity.key"

// SaveIdentity writes the private key to dir.
func SaveIdentity(key crypto.PrivKey, dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}

	keyBytes, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, IdentityFileName), keyBytes, 0o600)
}

// LoadIdentity loads the private key from dir.
// If the key doesn't exist, it generates a new one and saves it.
func LoadIdentity(dir string) (crypto.PrivKey, error) {
	keyPath := filepath.Join(dir, IdentityFileName)

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read identity: %w", err)
		}
		privKey, _, err := crypto.GenerateEd25519Key(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to generate identity: %w", err)
		}
		if err := SaveIdentity(privKey, dir); err != nil {
			return nil, err
		}
		log.Infow("generated host identity", "path", keyPath)
		return privKey, nil
	}

	privKey, err := crypto.UnmarshalPrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity %s: %w", keyPath, err)
	}
	return privKey, nil
}
