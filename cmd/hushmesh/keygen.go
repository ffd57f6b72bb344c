package main

import (
	"fmt"

	"github.com/baderanaas/hushmesh/internal/config"
	"github.com/baderanaas/hushmesh/pkg/crypto"
	"github.com/urfave/cli/v2"
)

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "create the key pair if missing and print its public key",
	Flags: []cli.Flag{
		keyDirFlag,
		&cli.IntFlag{
			Name:  "bits",
			Usage: "RSA modulus size for a new key pair",
			Value: crypto.DefaultKeyBits,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := config.ReadKeys()
		if err != nil {
			return err
		}
		if c.IsSet(keyDirFlag.Name) {
			cfg.KeyDir = c.String(keyDirFlag.Name)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		keys, err := crypto.LoadOrGenerate(cfg.KeyDir, cfg.Passphrase, crypto.WithKeyBits(c.Int("bits")))
		if err != nil {
			return err
		}
		if _, err := keys.Unlock(); err != nil {
			return err
		}

		w := c.App.Writer
		fmt.Fprintf(w, "fingerprint: %s\n", keys.Fingerprint())
		_, err = w.Write(keys.PublicKeyPEM())
		return err
	},
}
