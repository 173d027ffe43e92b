// Stuffbot drives a wheeled robot around a room, photographs the objects it
// finds and lets a vision model choose each movement.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-stuffbot/internal/log"
	"github.com/teslashibe/go-stuffbot/pkg/stuffbot"
	"github.com/teslashibe/go-stuffbot/pkg/tracking"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}

	if cfg.LogFile != "" {
		log.InitWithFile(cfg.LogLevel, cfg.LogFile)
	} else {
		log.Init(cfg.LogLevel)
	}
	logger := log.L()

	app, err := stuffbot.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	runErr := app.Run(ctx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dashboard shutdown", "error", err)
	}

	if runErr != nil {
		logger.Error("runtime error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("stuffbot stopped")
}

// parseFlags layers flags over the config file and environment.
func parseFlags() (stuffbot.Config, error) {
	configPath := flag.String("config", "", "YAML config file")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "Also write logs to this file (rotated)")
	provider := flag.String("provider", "", "Oracle provider: gemini, openai, chain")
	transport := flag.String("transport", "", "Drivetrain transport: mqtt, rosbridge")
	preset := flag.String("preset", "", "Camera preset: default, 720p, 1080p, lowlight, fast")
	historyFile := flag.String("history", "", "Persist decision history to this JSONL file")
	cautious := flag.Bool("cautious", false, "Track only confident detections and forget them sooner")
	noWeb := flag.Bool("no-web", false, "Disable the dashboard")
	flag.Parse()

	cfg := stuffbot.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = stuffbot.LoadFile(*configPath); err != nil {
			return cfg, err
		}
	}
	cfg.LoadEnvConfig()

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *provider != "" {
		cfg.Oracle.Provider = *provider
	}
	if *transport != "" {
		cfg.Drivetrain.Transport = *transport
	}
	if *preset != "" {
		cfg.CameraPreset = *preset
	}
	if *historyFile != "" {
		cfg.HistoryFile = *historyFile
	}
	if *cautious {
		cfg.Tracking = tracking.CautiousConfig()
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	return cfg, nil
}
