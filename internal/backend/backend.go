// Package backend provides HTTP clients for blockchain node APIs that are not
// reachable through go-ethereum's JSON-RPC client.
// This package never holds private keys - callers sign and pass signatures in.
package backend

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotConnected    = errors.New("backend not connected")
	ErrTxNotFound      = errors.New("transaction not found")
	ErrBroadcastFailed = errors.New("broadcast failed")
	ErrRateLimited     = errors.New("rate limited")
	ErrContractCall    = errors.New("contract call failed")
	ErrInvalidTxID     = errors.New("transaction id does not match raw data")
)

// Type represents the backend type.
type Type string

const (
	TypeTronHTTP Type = "tron-http" // java-tron full node HTTP API (TronGrid compatible)
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

// Config contains backend configuration.
type Config struct {
	Type Type   `yaml:"type"`
	URL  string `yaml:"url"`

	// APIKey is sent as TRON-PRO-API-KEY when set.
	APIKey string `yaml:"api_key,omitempty"`

	// Timeout per request, default 30s.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// DefaultConfigs returns default backend configurations per network.
func DefaultConfigs() map[string]*Config {
	return map[string]*Config{
		"tron": {
			Type: TypeTronHTTP,
			URL:  "https://api.shasta.trongrid.io",
		},
		"tron-mainnet": {
			Type: TypeTronHTTP,
			URL:  "https://api.trongrid.io",
		},
	}
}
