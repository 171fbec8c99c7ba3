package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/polysleuth/internal/config"
	"github.com/rewired-gh/polysleuth/internal/detector"
	"github.com/rewired-gh/polysleuth/internal/indexer"
	"github.com/rewired-gh/polysleuth/internal/logger"
	"github.com/rewired-gh/polysleuth/internal/polymarket"
	"github.com/rewired-gh/polysleuth/internal/storage"
	"github.com/rewired-gh/polysleuth/internal/telegram"
)

const usage = `Usage: polysleuth <command> [flags]

Commands:
  index     fetch wallet activity and market metadata into the local store
  detect    score wallets and print a risk table
  serve     run the HTTP API, optionally with scheduled scans
  validate  compare scores of known insider wallets against a control group

Run "polysleuth <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "index":
		err = runIndex(ctx, args)
	case "detect":
		err = runDetect(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "validate":
		err = runValidate(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("%s failed: %v", os.Args[1], err)
	}
}

// app bundles the components every command shares.
type app struct {
	cfg      *config.Config
	store    *storage.Storage
	detector *detector.Detector
	client   *polymarket.Client
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "configs/config.yaml", "Path to configuration file")
}

func bootstrap(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("Configuration loaded from %s", configPath)
	if !cfg.Scoring.WeightsBalanced() {
		logger.Warn("Signal weights sum to %.4f, composite scores will not span [0, 1]", cfg.Scoring.Weights.Sum())
	}

	store, err := storage.New(cfg.Storage.MaxReports, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	det, err := detector.New(store, detector.Config{
		Concurrency: cfg.Detector.Concurrency,
		Scoring:     cfg.Scoring,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client := polymarket.NewClient(polymarket.Config{
		DataAPIURL:  cfg.Polymarket.DataAPIURL,
		GammaAPIURL: cfg.Polymarket.GammaAPIURL,
		PageSize:    cfg.Polymarket.PageSize,
		Timeout:     cfg.Polymarket.Timeout,
		MaxRetries:  cfg.Polymarket.MaxRetries,
		RetryDelay:  cfg.Polymarket.RetryDelay,
	})

	return &app{cfg: cfg, store: store, detector: det, client: client}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

func (a *app) indexer() *indexer.Indexer {
	return indexer.New(a.client, a.store, a.cfg.Detector.Concurrency)
}

// telegram returns nil when notifications are disabled.
func (a *app) telegram() (*telegram.Client, error) {
	if !a.cfg.Telegram.Enabled {
		logger.Debug("Telegram notifications disabled")
		return nil, nil
	}
	tg, err := telegram.NewClient(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID,
		a.cfg.Telegram.MaxRetries, a.cfg.Telegram.RetryDelayBase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	logger.Info("Telegram client initialized successfully")
	return tg, nil
}
