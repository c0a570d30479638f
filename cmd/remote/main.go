package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/config"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/remote"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/console"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/env"
)

// flags holds the command line overrides
type flags struct {
	mode       string // relay or direct
	relayURL   string // relay websocket endpoint
	serverURL  string // direct mode HTTP server
	configPath string // optional YAML configuration file
	debug      bool   // enable debug logging
}

// isFlagPassed checks if a specific flag was passed on the command line
func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

/*
 * loadConfig resolves the configuration from the YAML file, the process
 * environment and the .env file (KH_ENV_FILE, default ./.env), then applies
 * any command line flags on top. Invalid configuration is fatal.
 */
func loadConfig(f flags) *config.Config {
	if f.debug {
		os.Setenv("DEBUG", "true")
		os.Setenv("LOG_LEVEL", "DEBUG")
	}
	debug.Reinitialize()

	cfg, err := config.Load(f.configPath, env.GetOrDefault("KH_ENV_FILE", ".env"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if isFlagPassed("mode") {
		cfg.Mode = config.Mode(f.mode)
	}
	if isFlagPassed("relay") {
		cfg.RelayURL = f.relayURL
	}
	if isFlagPassed("server") {
		cfg.ServerURL = f.serverURL
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	debug.Info("Configuration loaded: mode=%s relay=%s server=%s", cfg.Mode, cfg.RelayURL, cfg.ServerURL)
	return cfg
}

func main() {
	var f flags
	flag.StringVar(&f.mode, "mode", "", "Operating mode: relay or direct (default: relay)")
	flag.StringVar(&f.relayURL, "relay", "", "Relay websocket URL (e.g., ws://localhost:8765/ws)")
	flag.StringVar(&f.serverURL, "server", "", "Direct mode server URL (e.g., http://localhost:5000)")
	flag.StringVar(&f.configPath, "config", "", "Path to a YAML configuration file")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging (default: false)")
	flag.Parse()

	cfg := loadConfig(f)

	client, err := remote.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sh := newShell(client, os.Stdin)
	if err := sh.run(ctx); err != nil {
		console.Error("%v", err)
	}

	if err := client.Close(); err != nil {
		console.Error("Shutdown: %v", err)
		os.Exit(1)
	}
	console.Info("Bye")
}
