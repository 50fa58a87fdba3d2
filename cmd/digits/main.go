package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"digitlab/config"
	"digitlab/db"
	"digitlab/logging"
	"digitlab/monitoring"
	"digitlab/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	dataPath := flag.String("data", "", "optdigits file (default: synthetic digits)")
	seed := flag.Int64("seed", 0, "random seed (overrides config)")
	dbPath := flag.String("db", "", "sqlite database path (overrides config)")
	progressAddr := flag.String("progress-addr", "", "serve websocket progress on this address (overrides config)")
	watch := flag.Bool("watch", false, "re-run whenever the config file changes")
	jsonOut := flag.String("json", "", "write the run report as JSON to this path")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := loadConfig(*configPath, set["config"])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	override := func(c *config.Config) {
		if *dataPath != "" {
			c.Dataset.Path = *dataPath
		}
		if set["seed"] {
			c.Seed = *seed
		}
		if *dbPath != "" {
			c.Database.Path = *dbPath
		}
		if *progressAddr != "" {
			c.Monitor.Addr = *progressAddr
		}
	}
	override(cfg)

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *db.Store
	if cfg.Database.Path != "" {
		store, err = db.Open(cfg.Database.Path)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer store.Close()
		logger.Info("database initialized", zap.String("path", cfg.Database.Path))
	}

	var monitor *monitoring.Server
	if cfg.Monitor.Addr != "" {
		monitor = monitoring.NewServer(cfg.Monitor.Addr, logger)
		if store != nil {
			monitor.SetHistory(store)
		}
		if err := monitor.Start(); err != nil {
			logger.Fatal("failed to start progress monitor", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := monitor.Stop(shutdownCtx); err != nil {
				logger.Warn("monitor forced to shutdown", zap.Error(err))
			}
		}()
	}

	run := func(c *config.Config) error {
		rep, err := pipeline.Run(ctx, c, pipeline.Options{
			Out:     os.Stdout,
			Store:   store,
			Monitor: monitor,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		if rep.FitErrors != nil {
			logger.Warn("run finished with model failures", zap.Error(rep.FitErrors))
		}
		if *jsonOut != "" {
			if err := writeJSON(*jsonOut, rep); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}
		return nil
	}

	if err := run(cfg); err != nil {
		if !*watch {
			logger.Error("run failed", zap.Error(err))
			os.Exit(1)
		}
		logger.Warn("run failed, waiting for config changes", zap.Error(err))
	}
	if !*watch {
		return
	}

	err = config.Watch(ctx, *configPath, logger, func(c *config.Config) {
		override(c)
		if err := run(c); err != nil {
			logger.Warn("run failed", zap.Error(err))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("config watch stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutting down")
}

// loadConfig falls back to the defaults when the default config file is
// missing; an explicitly named file must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
