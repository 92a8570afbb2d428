package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/velocity-games/slipstream/internal/server"
)

var CLI struct {
	Config      string `short:"c" long:"config" default:"slipstream-server.hcl" help:"Path to HCL configuration file"`
	Addr        string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	LogLevel    string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	TurnTimeout int    `short:"t" long:"turn-timeout" help:"Turn timeout in seconds (overrides config)"`
	Seed        int64  `long:"seed" help:"Fixed race seed for every room (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	// Load configuration
	cfg, err := server.LoadServerConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}

	// Apply command line overrides
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.TurnTimeout > 0 {
		cfg.Server.TurnTimeoutMs = CLI.TurnTimeout * 1000
	}
	if CLI.Seed != 0 {
		for i := range cfg.Rooms {
			cfg.Rooms[i].Seed = CLI.Seed
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	// Setup logging
	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	logger.Info("Starting Slipstream Server",
		"addr", cfg.GetServerAddress(),
		"tracks", len(cfg.Tracks),
		"rooms", len(cfg.Rooms),
		"turnTimeout", time.Duration(cfg.Server.TurnTimeoutMs)*time.Millisecond)

	registry := server.NewRegistry(quartz.NewReal(), logger)
	for _, roomCfg := range cfg.RoomConfigs() {
		room, err := registry.AddRoom(roomCfg)
		if err != nil {
			logger.Error("Failed to create room", "error", err, "room", roomCfg.Name)
			kctx.Exit(1)
		}
		logger.Info("Created room",
			"id", room.ID(),
			"name", roomCfg.Name,
			"track", roomCfg.Track.Name,
			"mode", roomCfg.Mode,
			"maxPlayers", roomCfg.MaxPlayers,
			"laps", roomCfg.LapTarget)
	}

	wsServer := server.NewServer(cfg.GetServerAddress(), registry, logger)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("Shutting down server...")
		cancel()
	}()

	if err := wsServer.Run(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		kctx.Exit(1)
	}
}
