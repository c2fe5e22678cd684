package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables carrying key material.
const (
	EnvResolverPrivateKey = "RESOLVER_PRIVATE_KEY"
	EnvTronPrivateKey     = "TRON_PRIVATE_KEY"
	EnvMnemonic           = "RESOLVER_MNEMONIC"
	EnvSeedPassword       = "RESOLVER_SEED_PASSWORD"
)

// Secrets holds the resolver key material read from the environment.
// It is never written to disk by this package.
type Secrets struct {
	// ResolverPrivateKey is the hex secp256k1 key used on EVM networks.
	ResolverPrivateKey string
	// TronPrivateKey is the hex key used on Tron. Falls back to ResolverPrivateKey.
	TronPrivateKey string
	// Mnemonic is a BIP39 phrase keys are derived from when no raw key is set.
	Mnemonic string
	// SeedPassword unlocks an encrypted seed file in the data directory.
	SeedPassword string
}

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(expandPath(p)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// DotEnvPaths returns the .env locations checked at startup: the working
// directory, then the data directory.
func DotEnvPaths(dataDir string) []string {
	return []string{".env", filepath.Join(expandPath(dataDir), ".env")}
}

// LoadSecrets reads key material from the environment.
func LoadSecrets() Secrets {
	s := Secrets{
		ResolverPrivateKey: os.Getenv(EnvResolverPrivateKey),
		TronPrivateKey:     os.Getenv(EnvTronPrivateKey),
		Mnemonic:           os.Getenv(EnvMnemonic),
		SeedPassword:       os.Getenv(EnvSeedPassword),
	}
	if s.TronPrivateKey == "" {
		s.TronPrivateKey = s.ResolverPrivateKey
	}
	return s
}

// HasKey reports whether any key source is present.
func (s Secrets) HasKey() bool {
	return s.ResolverPrivateKey != "" || s.Mnemonic != "" || s.SeedPassword != ""
}
