// Package config holds the resolver daemon configuration.
//
// Settings live in <data-dir>/config.yaml. Key material never does: it is read
// from the environment (optionally populated from a .env file), see LoadSecrets.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/chain"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// Environment overrides.
const (
	EnvListen   = "RESOLVER_LISTEN"
	EnvLogLevel = "RESOLVER_LOG_LEVEL"
)

var (
	ErrNoNetworks       = errors.New("at least two enabled networks are required")
	ErrMissingRPCURL    = errors.New("network has no rpc_url")
	ErrRevealDelay      = errors.New("invalid reveal delay")
	ErrInvalidDeposit   = errors.New("invalid safety deposit")
	ErrInvalidAllowance = errors.New("invalid preflight amount")
)

// Config holds all configuration for the resolver daemon.
type Config struct {
	// DataDir is the directory for the config file, database and logs.
	DataDir string `yaml:"data_dir"`

	// Networks maps a network name (as used in swap requests) to its settings.
	Networks map[string]*NetworkConfig `yaml:"networks"`

	// TimeLocks is the five-phase schedule for each side of a swap.
	TimeLocks TimeLockConfig `yaml:"timelocks"`

	// Monitor controls the secret reveal loop.
	Monitor MonitorConfig `yaml:"monitor"`

	// SafetyDeposit is attached to escrow creation as native value (wei).
	SafetyDeposit SafetyDepositConfig `yaml:"safety_deposit"`

	// GasLimits per EVM operation.
	GasLimits GasLimitConfig `yaml:"gas_limits"`

	// ChainTimeout bounds every chain call, including waiting for a receipt.
	ChainTimeout time.Duration `yaml:"chain_timeout"`

	// Preflight controls the startup allowance check against escrow factories.
	Preflight PreflightConfig `yaml:"preflight"`

	// Registry controls order persistence and retention.
	Registry RegistryConfig `yaml:"registry"`

	// API holds HTTP server settings.
	API APIConfig `yaml:"api"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig holds the settings of one settlement network.
type NetworkConfig struct {
	// Enabled networks get an adapter at startup.
	Enabled bool `yaml:"enabled"`

	// RPCURL is a JSON-RPC endpoint for EVM networks or a full-node HTTP API
	// base URL for Tron.
	RPCURL string `yaml:"rpc_url"`

	// EscrowFactory overrides the built-in factory address. Leave empty to use
	// the built-in address for the chain; "none" forces degraded mode.
	EscrowFactory string `yaml:"escrow_factory,omitempty"`

	// ResolverAddress overrides the address derived from the resolver key.
	// Only used for read-only deployments.
	ResolverAddress string `yaml:"resolver_address,omitempty"`

	// FeeLimit is the Tron energy fee limit in sun for contract calls.
	FeeLimit int64 `yaml:"fee_limit,omitempty"`

	// Tokens adds or overrides assets on top of the built-in table.
	Tokens map[string]TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig describes an extra asset.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
	Name     string `yaml:"name,omitempty"`
}

// TimeLockConfig holds the source and destination schedules.
type TimeLockConfig struct {
	Src timelock.Schedule `yaml:"src"`
	Dst timelock.Schedule `yaml:"dst"`
}

// MonitorConfig holds secret reveal loop settings.
type MonitorConfig struct {
	// Interval between ticks.
	Interval time.Duration `yaml:"interval"`

	// RevealDelay is how long an order must sit in escrows_created before
	// payout. Zero means the source finality lock.
	RevealDelay time.Duration `yaml:"reveal_delay"`

	// CheckTimeout bounds a single tick.
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// SafetyDepositConfig holds the per-side deposits in wei.
type SafetyDepositConfig struct {
	Src string `yaml:"src"`
	Dst string `yaml:"dst"`
}

// GasLimitConfig holds gas limits for EVM transactions.
type GasLimitConfig struct {
	EscrowCreation uint64 `yaml:"escrow_creation"`
	Withdrawal     uint64 `yaml:"withdrawal"`
	Cancellation   uint64 `yaml:"cancellation"`
	Transfer       uint64 `yaml:"transfer"`
	Approve        uint64 `yaml:"approve"`
}

// PreflightConfig holds the startup approval check. Amounts are whole tokens.
type PreflightConfig struct {
	Enabled       bool  `yaml:"enabled"`
	MinAllowance  int64 `yaml:"min_allowance"`
	ApproveAmount int64 `yaml:"approve_amount"`
}

// RegistryConfig holds order registry settings.
type RegistryConfig struct {
	// Persist writes orders through to SQLite in the data directory.
	Persist bool `yaml:"persist"`

	// Retention is how long terminal orders stay in memory.
	Retention time.Duration `yaml:"retention"`

	// CleanupInterval is how often retention is enforced.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// SwapRatePerMinute limits POST /swap per client. Zero disables the limit.
	SwapRatePerMinute int `yaml:"swap_rate_per_minute"`

	// SwapBurst is the rate limiter burst.
	SwapBurst int `yaml:"swap_burst"`

	// CORSOrigins allowed to call the API. "*" allows all.
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stderr only).
	File string `yaml:"file"`

	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

// DefaultConfig returns a Config with the testnet deployment defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "~/.fusion-resolver",
		Networks: map[string]*NetworkConfig{
			"sepolia": {
				Enabled: true,
				RPCURL:  "https://ethereum-sepolia-rpc.publicnode.com",
			},
			"tron": {
				Enabled:  true,
				RPCURL:   "https://api.shasta.trongrid.io",
				FeeLimit: 100_000_000,
			},
		},
		TimeLocks: TimeLockConfig{
			Src: timelock.DefaultSrcSchedule(),
			Dst: timelock.DefaultDstSchedule(),
		},
		Monitor: MonitorConfig{
			Interval:     30 * time.Second,
			CheckTimeout: 2 * time.Minute,
		},
		SafetyDeposit: SafetyDepositConfig{
			Src: "1000000000000000",
			Dst: "1000000000000000",
		},
		GasLimits: GasLimitConfig{
			EscrowCreation: 800000,
			Withdrawal:     150000,
			Cancellation:   150000,
			Transfer:       100000,
			Approve:        100000,
		},
		ChainTimeout: 2 * time.Minute,
		Preflight: PreflightConfig{
			Enabled:       true,
			MinAllowance:  1000,
			ApproveAmount: 10000,
		},
		Registry: RegistryConfig{
			Persist:         true,
			Retention:       24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		API: APIConfig{
			Listen:            "127.0.0.1:3001",
			SwapRatePerMinute: 30,
			SwapBurst:         5,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// LoadConfig loads configuration from <dataDir>/config.yaml.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	configPath := ConfigPath(dataDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		cfg.ApplyEnv()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	cfg.DataDir = dataDir
	// Networks from the file replace the defaults rather than merging into them.
	cfg.Networks = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Networks == nil {
		cfg.Networks = DefaultConfig().Networks
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Fusion Resolver Configuration\n# Generated automatically on first run\n# Keys are read from RESOLVER_PRIVATE_KEY / TRON_PRIVATE_KEY / RESOLVER_MNEMONIC, never from this file\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv applies RESOLVER_LISTEN and RESOLVER_LOG_LEVEL.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.API.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for inconsistencies that would make swaps
// unsafe or impossible.
func (c *Config) Validate() error {
	enabled := c.EnabledNetworks()
	if len(enabled) < 2 {
		return fmt.Errorf("%w: have %d", ErrNoNetworks, len(enabled))
	}
	for _, name := range enabled {
		n := c.Networks[name]
		if n.RPCURL == "" {
			return fmt.Errorf("%w: %s", ErrMissingRPCURL, name)
		}
		if _, ok := chain.Get(name); !ok {
			return fmt.Errorf("network %s: %w", name, chain.ErrUnknownNetwork)
		}
	}

	if err := c.TimeLocks.Src.Validate(); err != nil {
		return fmt.Errorf("timelocks.src: %w", err)
	}
	if err := c.TimeLocks.Dst.Validate(); err != nil {
		return fmt.Errorf("timelocks.dst: %w", err)
	}

	delay := c.RevealDelay()
	if delay < c.TimeLocks.Src.FinalityLock {
		return fmt.Errorf("%w: %s is shorter than the source finality lock %s", ErrRevealDelay, delay, c.TimeLocks.Src.FinalityLock)
	}
	if delay >= c.TimeLocks.Dst.PublicWithdrawal && c.TimeLocks.Dst.PublicWithdrawal > 0 {
		return fmt.Errorf("%w: %s leaves no private withdrawal window on the destination (ends at %s)", ErrRevealDelay, delay, c.TimeLocks.Dst.PublicWithdrawal)
	}

	if _, err := c.SrcSafetyDeposit(); err != nil {
		return err
	}
	if _, err := c.DstSafetyDeposit(); err != nil {
		return err
	}

	if c.Preflight.Enabled {
		if c.Preflight.MinAllowance < 0 || c.Preflight.ApproveAmount < c.Preflight.MinAllowance {
			return fmt.Errorf("%w: min_allowance=%d approve_amount=%d", ErrInvalidAllowance, c.Preflight.MinAllowance, c.Preflight.ApproveAmount)
		}
	}

	if c.Monitor.Interval <= 0 {
		return errors.New("monitor.interval must be positive")
	}
	if c.ChainTimeout <= 0 {
		return errors.New("chain_timeout must be positive")
	}
	return nil
}

// RevealDelay returns the effective reveal delay. The finality lock is the
// single source for it unless monitor.reveal_delay is set explicitly.
func (c *Config) RevealDelay() time.Duration {
	if c.Monitor.RevealDelay > 0 {
		return c.Monitor.RevealDelay
	}
	return c.TimeLocks.Src.FinalityLock
}

// SrcSafetyDeposit returns the source-side safety deposit in wei.
func (c *Config) SrcSafetyDeposit() (*big.Int, error) {
	return parseWei("src", c.SafetyDeposit.Src)
}

// DstSafetyDeposit returns the destination-side safety deposit in wei.
func (c *Config) DstSafetyDeposit() (*big.Int, error) {
	return parseWei("dst", c.SafetyDeposit.Dst)
}

func parseWei(side, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidDeposit, side, s)
	}
	return v, nil
}

// EnabledNetworks returns the names of enabled networks, sorted.
func (c *Config) EnabledNetworks() []string {
	var names []string
	for name, n := range c.Networks {
		if n != nil && n.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ChainRegistry builds a chain registry with the built-in tables plus the
// configured token overrides.
func (c *Config) ChainRegistry() (*chain.Registry, error) {
	reg := chain.NewRegistry()
	for _, name := range c.EnabledNetworks() {
		for symbol, tok := range c.Networks[name].Tokens {
			err := reg.AddAsset(name, &chain.AssetInfo{
				Symbol:   symbol,
				Name:     tok.Name,
				Decimals: tok.Decimals,
				Address:  tok.Address,
				Network:  name,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to add token %s on %s: %w", symbol, name, err)
			}
		}
	}
	return reg, nil
}

// DatabasePath returns the SQLite database path.
func (c *Config) DatabasePath() string {
	return filepath.Join(expandPath(c.DataDir), "resolver.db")
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) string {
	return expandPath(path)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
