// Package config loads hushmesh settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/baderanaas/hushmesh/pkg/overlay"
	logging "github.com/ipfs/go-log/v2"
	"github.com/kelseyhightower/envconfig"
)

var log = logging.Logger("hushmesh/config")

// DefaultPassphrase protects the private key when PRIVATE_KEY_PASSPHRASE is unset.
const DefaultPassphrase = "test"

// KeyConfig locates and protects the key pair.
type KeyConfig struct {
	Passphrase string `envconfig:"PRIVATE_KEY_PASSPHRASE" default:"test"`
	KeyDir     string `envconfig:"KEY_DIR" default:"."`
}

// ReadKeys reads the key settings without validating them.
func ReadKeys() (*KeyConfig, error) {
	var cfg KeyConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the key settings and warns when the default passphrase is in use.
func (k *KeyConfig) Validate() error {
	if k.Passphrase == "" {
		return errors.New("PRIVATE_KEY_PASSPHRASE cannot be empty")
	}
	if k.KeyDir == "" {
		return errors.New("KEY_DIR cannot be empty")
	}
	if k.Passphrase == DefaultPassphrase {
		log.Warnw("private key is protected by the default passphrase; set PRIVATE_KEY_PASSPHRASE")
	}
	return nil
}

// Config is read from unprefixed environment variables. NODE_NAME has no default;
// callers may fill it from a flag before Validate.
type Config struct {
	NodeName      string `envconfig:"NODE_NAME"`
	Namespace     string `envconfig:"TOPIC_NAMESPACE" default:"hush"`
	BrokerAddress string `envconfig:"BROKER_ADDRESS"`
	KeyConfig
	ListenPort       int           `envconfig:"LISTEN_PORT" default:"0"`
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":3000"`
	AnnounceInterval time.Duration `envconfig:"ANNOUNCE_INTERVAL" default:"30s"`
	EnableMDNS       bool          `envconfig:"ENABLE_MDNS" default:"true"`
	EnableDHT        bool          `envconfig:"ENABLE_DHT" default:"false"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Read reads the environment without validating the result.
func Read() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c *Config) Validate() error {
	if c.NodeName == "" {
		return errors.New("NODE_NAME is required")
	}
	if err := overlay.ValidateName(c.NodeName); err != nil {
		return fmt.Errorf("NODE_NAME: %w", err)
	}
	if err := overlay.ValidateName(c.Namespace); err != nil {
		return fmt.Errorf("TOPIC_NAMESPACE: %w", err)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("LISTEN_PORT out of range: %d", c.ListenPort)
	}
	if c.AnnounceInterval < 0 {
		return fmt.Errorf("ANNOUNCE_INTERVAL cannot be negative: %s", c.AnnounceInterval)
	}
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return c.KeyConfig.Validate()
}

// NodeConfig maps the settings onto an overlay node configuration.
func (c *Config) NodeConfig() overlay.Config {
	return overlay.Config{
		Name:             c.NodeName,
		Namespace:        c.Namespace,
		BrokerAddress:    c.BrokerAddress,
		KeyDir:           c.KeyDir,
		Passphrase:       c.Passphrase,
		AnnounceInterval: c.AnnounceInterval,
	}
}
