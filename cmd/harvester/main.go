// Command harvester is the entry point for the Twitch channel points miner.
// It loads account configurations, starts one Miner per account, and
// manages graceful shutdown via OS signals.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/term"

	"github.com/veikko/twitch-harvester/internal/analytics"
	"github.com/veikko/twitch-harvester/internal/config"
	"github.com/veikko/twitch-harvester/internal/logger"
	"github.com/veikko/twitch-harvester/internal/miner"
	"github.com/veikko/twitch-harvester/internal/model"
	"github.com/veikko/twitch-harvester/internal/server"
)

const banner = `
╔══════════════════════════════════════════════════╗
║       Twitch Harvester - channel points miner    ║
╚══════════════════════════════════════════════════╝
`

// processEnv holds process-level settings read from the environment.
// Per-account secrets are handled by the config package.
type processEnv struct {
	Port     string `env:"PORT"`
	LogLevel string `env:"LOG_LEVEL"`
	NoColor  string `env:"NO_COLOR"`
}

func main() {
	configDir := flag.String("config", "configs", "Path to the configuration directory")
	port := flag.String("port", "8080", "Port for the health/analytics HTTP server")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides LOG_LEVEL env)")
	noColor := flag.Bool("no-color", false, "Disable colored output (overrides TTY detection)")
	flag.Parse()

	// A .env file next to the binary is optional; secrets can also come from
	// the real environment.
	_ = godotenv.Load()

	var env processEnv
	if err := envconfig.Process(context.Background(), &env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read environment: %v\n", err)
		os.Exit(1)
	}

	level := logger.ParseLevel("INFO")
	if *logLevel != "" {
		level = logger.ParseLevel(*logLevel)
	} else if env.LogLevel != "" {
		level = logger.ParseLevel(env.LogLevel)
	}

	httpPort := *port
	if env.Port != "" {
		httpPort = env.Port
	}

	colored := !*noColor && term.IsTerminal(int(os.Stdout.Fd())) && env.NoColor == ""

	rootLog, err := logger.Setup(logger.Config{
		Level:   level,
		Colored: colored,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(banner)
	rootLog.Info("🚀 Starting Twitch Harvester")

	configs, err := config.LoadAllAccountConfigs(*configDir)
	if err != nil {
		rootLog.Error("Failed to load account configs", "dir", *configDir, "error", err)
		os.Exit(1)
	}

	for _, cfg := range configs {
		if err := config.Validate(cfg); err != nil {
			rootLog.Error("Invalid config", "account", cfg.Username, "error", err)
			os.Exit(1)
		}
	}

	rootLog.Info("📂 Loaded account configurations",
		"count", len(configs),
		"config_dir", *configDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		rootLog.Info("Received shutdown signal", "signal", sig.String())
		cancel()

		time.AfterFunc(30*time.Second, func() {
			rootLog.Error("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		})
	}()

	var store *analytics.Store
	for _, cfg := range configs {
		if cfg.IsEnabled() && cfg.Features.EnableAnalytics {
			store, err = analytics.Open(filepath.Join(*configDir, "analytics.db"), rootLog)
			if err != nil {
				rootLog.Error("Failed to open analytics store", "error", err)
				os.Exit(1)
			}
			defer store.Close()
			break
		}
	}

	type accountMiner struct {
		cfg   *config.AccountConfig
		miner *miner.Miner
	}

	miners := make([]accountMiner, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.IsEnabled() {
			rootLog.Info("Account is disabled, skipping", "account", cfg.Username)
			continue
		}
		accountLog := rootLog.WithAccount(cfg.Username)
		m := miner.NewMiner(cfg, accountLog)
		if store != nil && cfg.Features.EnableAnalytics {
			m.SetAnalyticsStore(store)
		}
		miners = append(miners, accountMiner{cfg: cfg, miner: m})
	}

	addr := ":" + httpPort
	analyticsServer := server.NewAnalyticsServer(addr, rootLog)

	analyticsServer.SetStreamerFunc(func() []*model.Streamer {
		var all []*model.Streamer
		for _, am := range miners {
			all = append(all, am.miner.Streamers()...)
		}
		return all
	})

	analyticsServer.SetAccountStatusFunc(func() []server.AccountStatus {
		statuses := make([]server.AccountStatus, 0, len(miners))
		for _, am := range miners {
			statuses = append(statuses, server.AccountStatus{
				Username: am.miner.Username(),
				Running:  am.miner.IsRunning(),
			})
		}
		return statuses
	})

	if store != nil {
		analyticsServer.SetStore(store)
	}

	go func() {
		if err := analyticsServer.Run(ctx); err != nil && ctx.Err() == nil {
			rootLog.Error("Analytics server failed", "error", err)
		}
	}()

	rootLog.Info("🌐 Health/analytics server started", "addr", addr)

	var wg sync.WaitGroup
	for _, am := range miners {
		accountLog := rootLog.WithAccount(am.cfg.Username)

		wg.Add(1)
		go func(am accountMiner) {
			defer wg.Done()
			if err := am.miner.Run(ctx); err != nil {
				if ctx.Err() != nil {
					accountLog.Info("Miner stopped due to shutdown", "account", am.cfg.Username)
				} else {
					accountLog.Error("Miner failed", "account", am.cfg.Username, "error", err)
				}
			}
		}(am)
	}

	wg.Wait()

	if ctx.Err() != nil {
		rootLog.Info("🛑 Shutdown complete")
	}

	rootLog.Info("👋 All miners stopped. Goodbye!")
}
