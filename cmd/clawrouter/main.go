// ClawRouter is a local HTTP proxy that routes OpenAI-format chat requests
// to the cheapest model capable of handling them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/clawinfra/clawrouter/internal/catalog"
	"github.com/clawinfra/clawrouter/internal/config"
	"github.com/clawinfra/clawrouter/internal/creds"
	"github.com/clawinfra/clawrouter/internal/ledger"
	"github.com/clawinfra/clawrouter/internal/maintenance"
	"github.com/clawinfra/clawrouter/internal/proxy"
	"github.com/clawinfra/clawrouter/internal/router"
	"github.com/clawinfra/clawrouter/internal/telemetry"
)

var version = "dev"

// Exit codes: 0 clean shutdown, 1 port bind failure, 2 no usable
// credentials.
const (
	exitOK          = 0
	exitBindFailure = 1
	exitNoCreds     = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (JSON or YAML)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clawrouter %s\n", version)
		return exitOK
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitBindFailure
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger := newLogger(cfg.Server.LogLevel)
	logger.Info("starting clawrouter", "version", version, "port", cfg.Server.Port)

	// Bind before anything else so a port clash fails fast.
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("cannot bind listen address", "addr", addr, "error", err)
		return exitBindFailure
	}
	defer ln.Close()

	cat := catalog.Default()
	for tierName, modelID := range cfg.ModelOverrides {
		tier, err := catalog.ParseTier(tierName)
		if err != nil {
			logger.Error("invalid model override", "tier", tierName, "error", err)
			return exitBindFailure
		}
		if err := cat.OverridePrimary(tier, modelID); err != nil {
			logger.Error("invalid model override", "tier", tierName, "model", modelID, "error", err)
			return exitBindFailure
		}
	}

	resolver := creds.NewEnvResolver(cfg.Server.WalletKey)
	if !resolver.Any(cat.Providers()) {
		logger.Error("no provider credentials found",
			"hint", "set BLOCKRUN_WALLET_KEY, OPENAI_API_KEY, or ANTHROPIC_API_KEY")
		return exitNoCreds
	}

	scoringCfg, err := cfg.ScoringConfig()
	if err != nil {
		logger.Error("invalid routing config", "error", err)
		return exitBindFailure
	}

	cache := router.NewCache()
	health := proxy.NewHealthRegistry(logger)
	upstream := proxy.NewUpstream(cat, resolver, health, logger)

	llm := router.NewLLMClassifier(cache, upstream.Complete, cat.Cheapest().ID, logger)
	if !cfg.Routing.LLMClassifier {
		llm = nil
	}
	rt := router.New(router.NewScorer(scoringCfg), llm, router.NewSelector(cat), logger)

	hooks := []telemetry.Hooks{telemetry.SlogHooks(logger)}

	var store *ledger.Ledger
	var roller maintenance.Roller
	if cfg.Ledger.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Ledger.Path), 0o755); err != nil {
			logger.Warn("cannot create ledger directory, ledger disabled", "error", err)
		} else if store, err = ledger.Open(cfg.Ledger.Path, logger); err != nil {
			logger.Warn("cannot open ledger, ledger disabled", "error", err)
		} else {
			defer store.Close()
			hooks = append(hooks, store.Hooks())
			roller = store
		}
	}

	feed := proxy.NewFeed(logger)
	stats := proxy.NewStats()
	server := proxy.NewServer(rt, upstream, cache, resolver, cat, stats,
		telemetry.Merge(hooks...), feed, resolver.WalletID(), logger)

	runner, err := maintenance.New(cache, roller, logger)
	if err != nil {
		logger.Error("maintenance setup failed", "error", err)
		return exitBindFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(ctx, ln) })
	g.Go(func() error { return runner.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", "error", err)
		return exitBindFailure
	}
	logger.Info("clawrouter stopped")
	return exitOK
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
