package overlay

import (
	"fmt"
	"time"

	"github.com/baderanaas/hushmesh/pkg/metrics"
	"github.com/benbjohnson/clock"
)

// DefaultSendConcurrency bounds how many peers a broadcast encrypts for at once.
const DefaultSendConcurrency = 8

// Config holds the configuration for an overlay node.
type Config struct {
	// Name is this node's identity on the bus. Required.
	Name string

	// Namespace is the first topic level shared by every node of the overlay. Required.
	Namespace string

	// BrokerAddress is handed to Transport.Connect. Its meaning is the transport's.
	BrokerAddress string

	// KeyDir holds public.pem and private.pem. Required.
	KeyDir string

	// Passphrase protects the private key at rest. Required.
	Passphrase string

	// KeyBits is the modulus size used when a key pair is generated. 0 uses the default.
	KeyBits int

	// AnnounceInterval re-publishes the public key periodically. 0 disables it;
	// the node still re-announces whenever it learns a new peer.
	AnnounceInterval time.Duration

	// SendConcurrency bounds parallel per-peer encryption during a broadcast.
	SendConcurrency int

	// Clock is used for timestamps and the announce ticker. Defaults to the wall clock.
	Clock clock.Clock

	// Metrics collects node metrics. Defaults to metrics.NopMetrics.
	Metrics metrics.Metrics
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return fmt.Errorf("%w: name: %v", ErrInvalidConfig, err)
	}
	if err := ValidateName(c.Namespace); err != nil {
		return fmt.Errorf("%w: namespace: %v", ErrInvalidConfig, err)
	}
	if c.KeyDir == "" {
		return fmt.Errorf("%w: key directory is required", ErrInvalidConfig)
	}
	if c.Passphrase == "" {
		return fmt.Errorf("%w: passphrase is required", ErrInvalidConfig)
	}
	if c.KeyBits < 0 {
		return fmt.Errorf("%w: key bits cannot be negative", ErrInvalidConfig)
	}
	if c.AnnounceInterval < 0 {
		return fmt.Errorf("%w: announce interval cannot be negative", ErrInvalidConfig)
	}
	if c.SendConcurrency < 0 {
		return fmt.Errorf("%w: send concurrency cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SendConcurrency == 0 {
		c.SendConcurrency = DefaultSendConcurrency
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NopMetrics{}
	}
}
