// Package main provides the resolverd daemon - an HTLC swap resolver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/adapter"
	"github.com/klingon-exchange/fusion-resolver/internal/backend"
	"github.com/klingon-exchange/fusion-resolver/internal/chain"
	"github.com/klingon-exchange/fusion-resolver/internal/config"
	"github.com/klingon-exchange/fusion-resolver/internal/registry"
	"github.com/klingon-exchange/fusion-resolver/internal/resolver"
	"github.com/klingon-exchange/fusion-resolver/internal/rpc"
	"github.com/klingon-exchange/fusion-resolver/internal/storage"
	"github.com/klingon-exchange/fusion-resolver/internal/wallet"
	"github.com/klingon-exchange/fusion-resolver/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir     = flag.String("data-dir", "~/.fusion-resolver", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		apiAddr     = flag.String("listen", "", "HTTP API address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		keyAccount  = flag.Uint("account", 0, "BIP44 account for mnemonic key derivation")
		keyIndex    = flag.Uint("index", 0, "BIP44 address index for mnemonic key derivation")
		initSeed    = flag.Bool("init-seed", false, "Create an encrypted seed file protected by "+config.EnvSeedPassword+" and exit")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, replaced once the config is loaded)
	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("resolverd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Environment first so RESOLVER_LISTEN and friends can come from .env
	if err := config.LoadDotEnv(config.DotEnvPaths(*dataDir)...); err != nil {
		log.Fatal("Failed to load .env", "error", err)
	}

	configDir := *dataDir
	if *configFile != "" {
		configDir = filepath.Dir(*configFile)
	}
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	cfg.DataDir = *dataDir

	// CLI flags take precedence over config file and environment
	if *apiAddr != "" {
		cfg.API.Listen = *apiAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config", "error", err)
	}

	logCfg := &logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	}
	if cfg.Logging.File != "" {
		logCfg.File = &logging.FileConfig{
			Path:       config.ExpandPath(cfg.Logging.File),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
	}
	log = logging.New(logCfg)
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.ConfigPath(configDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load resolver keys
	secrets := config.LoadSecrets()
	seedFile := filepath.Join(config.ExpandPath(cfg.DataDir), wallet.SeedFileName)
	if *initSeed {
		mnemonic, err := wallet.InitSeed(seedFile, secrets.SeedPassword)
		if err != nil {
			log.Fatal("Failed to create seed file", "error", err)
		}
		log.Info("Seed file created", "path", seedFile)
		log.Warn("Write down the mnemonic below. It is not shown again.")
		fmt.Println(mnemonic)
		os.Exit(0)
	}
	if !secrets.HasKey() {
		log.Fatal("No resolver key configured",
			"hint", "set "+config.EnvResolverPrivateKey+", "+config.EnvMnemonic+" or "+config.EnvSeedPassword+" with -init-seed")
	}
	keys, err := wallet.LoadKeys(wallet.KeySource{
		PrivateKey:     secrets.ResolverPrivateKey,
		TronPrivateKey: secrets.TronPrivateKey,
		Mnemonic:       secrets.Mnemonic,
		SeedFile:       seedFile,
		SeedPassword:   secrets.SeedPassword,
		Account:        uint32(*keyAccount),
		Index:          uint32(*keyIndex),
	})
	if err != nil {
		log.Fatal("Failed to load resolver keys", "error", err)
	}
	defer keys.Clear()
	log.Info("Resolver keys loaded", "evm", keys.EVM.EVMAddress().Hex(), "tron", keys.Tron.TronAddress())

	// Connect chain adapters
	set, err := dialAdapters(ctx, cfg, keys)
	if err != nil {
		log.Fatal("Failed to connect chain adapters", "error", err)
	}
	defer set.Close()
	log.Info("Chain adapters connected", "networks", set.Networks(), "escrow", set.EscrowNetworks())

	// Initialize storage and order registry
	var (
		store *storage.Storage
		reg   *registry.Registry
	)
	if cfg.Registry.Persist {
		store, err = storage.New(&storage.Config{DataDir: cfg.DataDir})
		if err != nil {
			log.Fatal("Failed to initialize storage", "error", err)
		}
		defer store.Close()
		log.Info("Storage initialized", "path", store.Path())
		reg = registry.New(store)
	} else {
		reg = registry.New(nil)
	}

	resCfg, err := resolver.NewConfig(cfg)
	if err != nil {
		log.Fatal("Invalid resolver config", "error", err)
	}
	var archive resolver.Archive
	if store != nil {
		archive = store
	}
	res := resolver.New(resCfg, set, reg, archive)

	// Start HTTP server before the resolver so /health answers during preflight
	server := rpc.NewServer(res, cfg.API)
	if err := server.Start(cfg.API.Listen); err != nil {
		log.Fatal("Failed to start HTTP server", "error", err)
	}

	if err := res.Start(ctx); err != nil {
		log.Fatal("Failed to start resolver", "error", err)
	}

	printBanner(log, cfg, set, server.Addr())

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()

	if err := server.Stop(); err != nil {
		log.Error("Error stopping HTTP server", "error", err)
	}
	res.Stop()

	log.Info("Goodbye!")
}

// dialAdapters connects one adapter per enabled network.
func dialAdapters(ctx context.Context, cfg *config.Config, keys *wallet.Keys) (*adapter.Set, error) {
	gas := adapter.GasLimits{
		EscrowCreation: cfg.GasLimits.EscrowCreation,
		Withdrawal:     cfg.GasLimits.Withdrawal,
		Cancellation:   cfg.GasLimits.Cancellation,
		Transfer:       cfg.GasLimits.Transfer,
		Approve:        cfg.GasLimits.Approve,
	}

	var adapters []adapter.ChainAdapter
	closeAll := func() {
		for _, a := range adapters {
			a.Close()
		}
	}

	for _, name := range cfg.EnabledNetworks() {
		n := cfg.Networks[name]
		params, ok := chain.Get(name)
		if !ok {
			closeAll()
			return nil, fmt.Errorf("%w: %s", chain.ErrUnknownNetwork, name)
		}

		switch params.Kind {
		case chain.KindTron:
			a, err := adapter.NewTronAdapter(adapter.TronConfig{
				Network:         name,
				Node:            &backend.Config{Type: backend.TypeTronHTTP, URL: n.RPCURL, Timeout: cfg.ChainTimeout},
				ResolverAddress: n.ResolverAddress,
				FeeLimit:        n.FeeLimit,
				Timeout:         cfg.ChainTimeout,
			}, keys.Tron)
			if err != nil {
				closeAll()
				return nil, err
			}
			if err := a.Connect(ctx); err != nil {
				a.Close()
				closeAll()
				return nil, err
			}
			adapters = append(adapters, a)

		default:
			a, err := adapter.DialEVM(ctx, adapter.EVMConfig{
				Network:         name,
				RPCURL:          n.RPCURL,
				EscrowFactory:   cfg.EscrowFactory(name),
				ResolverAddress: n.ResolverAddress,
				GasLimits:       gas,
				Timeout:         cfg.ChainTimeout,
			}, keys.EVM)
			if err != nil {
				closeAll()
				return nil, err
			}
			adapters = append(adapters, a)
		}
	}

	set, err := adapter.NewSet(adapters...)
	if err != nil {
		closeAll()
		return nil, err
	}
	return set, nil
}

func printBanner(log *logging.Logger, cfg *config.Config, set *adapter.Set, apiAddr string) {
	log.Info("")
	log.Info("=================================================")
	log.Info("  Fusion Resolver")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	for _, name := range set.Networks() {
		a, _ := set.Get(name)
		mode := "degraded (direct transfer)"
		if a.SupportsEscrow() {
			mode = "escrow"
		}
		log.Infof("  %-10s %s  %s", name, a.ResolverAddress(), mode)
	}
	log.Info("")
	log.Infof("  API: http://%s", apiAddr)
	log.Infof("  WS:  ws://%s/ws", apiAddr)
	log.Info("")
	log.Infof("  Reveal delay: %s | Monitor: %s", cfg.RevealDelay(), cfg.Monitor.Interval)
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
