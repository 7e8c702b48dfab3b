// Package main is the entry point for the keygate service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tenantsec/keygate/internal/apikey"
	"github.com/tenantsec/keygate/internal/config"
	"github.com/tenantsec/keygate/internal/observability"
	"github.com/tenantsec/keygate/internal/server"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)
	store := buildStore(cfg, logger)
	defer func() { _ = store.Close() }()

	metrics := apikey.GetSharedMetrics()
	metrics.Init()

	manager, err := apikey.NewManager(store,
		apikey.WithLogger(logger),
		apikey.WithMetrics(metrics),
	)
	if err != nil {
		fatalWithSync(logger, "failed to create key lifecycle manager", observability.Error(err))
	}

	srv := server.New(cfg, manager, metrics, server.WithServerLogger(logger))
	runServer(srv, cfg, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("KEYGATE_CONFIG_PATH", ""),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("KEYGATE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("KEYGATE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("keygate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadConfig loads and validates the configuration.
func loadConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting keygate",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("addr", cfg.Server.Addr),
		observability.String("store", cfg.Store.Type),
		observability.Bool("metrics", cfg.Metrics.Enabled),
	)
	return cfg
}

// buildStore creates the key record store selected by the configuration.
func buildStore(cfg *config.Config, logger observability.Logger) apikey.Store {
	switch cfg.Store.Type {
	case config.StoreTypeRedis:
		redisCfg := apikey.DefaultRedisConfig()
		redisCfg.Addr = cfg.Store.Redis.Addr
		redisCfg.Password = cfg.Store.Redis.Password
		redisCfg.DB = cfg.Store.Redis.DB
		redisCfg.Logger = logger
		if cfg.Store.Redis.Prefix != "" {
			redisCfg.Prefix = cfg.Store.Redis.Prefix
		}
		if cfg.Store.Redis.PoolSize > 0 {
			redisCfg.PoolSize = cfg.Store.Redis.PoolSize
		}
		if cfg.Store.Redis.MinIdleConns > 0 {
			redisCfg.MinIdleConns = cfg.Store.Redis.MinIdleConns
		}
		if d := cfg.Store.Redis.DialTimeout.AsDuration(); d > 0 {
			redisCfg.DialTimeout = d
		}
		if d := cfg.Store.Redis.ReadTimeout.AsDuration(); d > 0 {
			redisCfg.ReadTimeout = d
		}
		if d := cfg.Store.Redis.WriteTimeout.AsDuration(); d > 0 {
			redisCfg.WriteTimeout = d
		}

		store, err := apikey.NewRedisStore(redisCfg)
		if err != nil {
			fatalWithSync(logger, "failed to create Redis store", observability.Error(err))
		}
		return store
	default:
		logger.Warn("using in-memory key store; records will not survive restarts")
		return apikey.NewMemoryStore()
	}
}

// runServer runs the HTTP server until a shutdown signal arrives.
func runServer(srv *server.Server, cfg *config.Config, logger observability.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			fatalWithSync(logger, "HTTP server failed", observability.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.AsDuration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop HTTP server gracefully", observability.Error(err))
	}
	logger.Info("shutdown complete")
}

// fatalWithSync flushes the logger before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	logger.Error(msg, fields...)
	_ = logger.Sync()
	os.Exit(1)
}
