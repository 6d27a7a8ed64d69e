// Package main is the entry point for the KelvinBot chat relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haydenmc/kelvinbot/internal/buildinfo"
	"github.com/haydenmc/kelvinbot/internal/config"
	"github.com/haydenmc/kelvinbot/internal/core"
	"github.com/haydenmc/kelvinbot/internal/services/federated"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(logger, *configPath)
		case "init":
			dir := "."
			if flag.NArg() > 1 {
				dir = flag.Arg(1)
			}
			if err := runInit(os.Stdout, dir); err != nil {
				fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
				os.Exit(1)
			}
		case "validate-config":
			runValidateConfig(logger, *configPath)
		case "verify-device":
			if flag.NArg() < 4 {
				fmt.Fprintln(os.Stderr, "usage: kelvinbot verify-device <service> <device-id> <key>")
				os.Exit(1)
			}
			runVerifyDevice(logger, *configPath, flag.Arg(1), flag.Arg(2), flag.Arg(3))
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	// Default: show help
	fmt.Println("KelvinBot - multi-protocol chat relay and automation bot")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve            Connect services and run the bus")
	fmt.Println("  init             Create a working directory with an example config")
	fmt.Println("  validate-config  Parse and validate the configuration, then exit")
	fmt.Println("  verify-device    Render a pairing code for a new encrypted device")
	fmt.Println("  version          Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// loadConfig finds and loads the configuration with the KELVIN__
// environment overlay applied. Exits the process on failure, since
// every subcommand needs a valid config to do anything.
func loadConfig(logger *slog.Logger, configPath string) *config.Config {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadWithEnv(cfgPath, os.Environ())
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded", "path", cfgPath,
		"services", len(cfg.Services), "middlewares", len(cfg.Middlewares))
	return cfg
}

func runServe(logger *slog.Logger, configPath string) {
	logger.Info("starting KelvinBot",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit,
		"branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg := loadConfig(logger, configPath)

	// Reconfigure logger with config-driven level
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDirectory, "error", err)
		os.Exit(1)
	}

	bus, err := buildBus(cfg, logger)
	if err != nil {
		logger.Error("failed to build bus", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bus.Run(ctx); err != nil {
		logger.Error("bus exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func runValidateConfig(logger *slog.Logger, configPath string) {
	cfg := loadConfig(logger, configPath)

	// Surface unknown kinds the way serve would, without starting anything.
	for name, svc := range cfg.Services {
		if !config.KnownServiceKind(svc.Kind) {
			logger.Warn("service has unknown kind and will be skipped", "name", name, "kind", svc.Kind)
		}
	}
	for name, mw := range cfg.Middlewares {
		if !config.KnownMiddlewareKind(mw.Kind) {
			logger.Warn("middleware has unknown kind and will be skipped", "name", name, "kind", mw.Kind)
		}
	}

	fmt.Println("configuration OK")
}

func runVerifyDevice(logger *slog.Logger, configPath, serviceName, deviceID, key string) {
	cfg := loadConfig(logger, configPath)

	sc, ok := cfg.Services[serviceName]
	if !ok {
		logger.Error("no such service", "name", serviceName)
		os.Exit(1)
	}
	if sc.Kind != config.ServiceKindFederated {
		logger.Error("device verification requires a federated service", "name", serviceName, "kind", sc.Kind)
		os.Exit(1)
	}

	events := make(chan core.Event, 1) // unused; the service never runs here
	svc, err := federated.New(events, federated.Config{
		ID:           core.ServiceID(serviceName),
		Homeserver:   sc.Homeserver,
		AdminBaseURL: sc.AdminBaseURL,
		AdminToken:   sc.AdminToken,
		Org:          sc.Org,
		DataDir:      cfg.ServiceDataDir(serviceName),
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to construct service", "error", err)
		os.Exit(1)
	}

	path, err := svc.VerifyDevice(deviceID, key)
	if err != nil {
		logger.Error("device verification failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Pairing code written to %s. Scan it from the new device.\n", path)
}
