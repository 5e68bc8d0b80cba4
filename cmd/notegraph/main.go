// Package main provides the notegraph server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/notegraph/internal/config"
	"github.com/thebtf/notegraph/internal/graph"
	"github.com/thebtf/notegraph/internal/server"
	"github.com/thebtf/notegraph/internal/textgen"
	"github.com/thebtf/notegraph/internal/vault"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Parse flags
	addr := flag.String("addr", "", "Listen address (default: :<config port>)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.notegraph)")
	vaultPath := flag.String("vault", "", "Default vault directory")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	// Ensure data and cache directories plus a default config exist
	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	if *vaultPath != "" {
		cfg.VaultPath = *vaultPath
	}
	if cfg.VaultPath == "" {
		log.Fatal().Msg("No vault configured: set --vault, NOTEGRAPH_VAULT_PATH, or vault_path in config")
	}

	dir := config.DataDir()
	cacheDir := config.CacheDir()
	if *dataDir != "" {
		dir = *dataDir
		cacheDir = filepath.Join(*dataDir, "graph-cache")
		if err := os.MkdirAll(cacheDir, 0o750); err != nil {
			log.Fatal().Err(err).Msg("Failed to create cache directory")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()

	// Text generator for cluster labeling; label generation degrades to
	// fallback labels when the provider is unreachable.
	gen, err := textgen.NewClient(cfg.Generator)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid generator configuration")
	}

	engine := graph.NewEngine(cacheDir, gen)

	// Vault registry with live invalidation
	registry := vault.NewRegistry(dir, cfg.VaultPath)
	if err := registry.Watch(); err != nil {
		log.Warn().Err(err).Msg("Registry watcher unavailable, changes require restart")
	}
	defer registry.Close()

	svc := server.New(Version, cfg, engine, registry)

	listen := *addr
	if listen == "" {
		listen = fmt.Sprintf(":%d", config.GetPort())
	}

	log.Info().
		Str("version", Version).
		Str("vault", cfg.VaultPath).
		Str("cache_dir", cacheDir).
		Msg("Starting notegraph server")

	if err := svc.Start(ctx, listen); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
