package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightshal/internal/app"
	"github.com/dokzlo13/lightshal/internal/config"
)

// setFlags collects repeated --set id=color values
type setFlags []string

func (s *setFlags) String() string {
	return strings.Join(*s, ",")
}

func (s *setFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected id=color, got %q", v)
	}
	*s = append(*s, v)
	return nil
}

func main() {
	// Support both -c and --config for config path
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "config.yaml", "Path to configuration file (shorthand)")
	var sets setFlags
	flag.Var(&sets, "set", "Set a light, as id=color (#RRGGBB, 0xAARRGGBB or decimal); repeatable")
	daemon := flag.Bool("daemon", false, "Keep running after applying --set values")
	history := flag.String("history", "", "Print recorded history for a light id or event type, then exit")
	historyLimit := flag.Int("history-limit", 20, "Number of entries printed by --history")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	setupLogging(cfg.Log.GetLevel(), cfg.Log.UseJSON, cfg.Log.Colors)

	if *history != "" {
		os.Exit(printHistory(cfg, *history, *historyLimit))
	}

	oneShot := len(sets) > 0 && !*daemon
	if oneShot {
		// Watchdog writes are asynchronous and would race the exit
		cfg.Watchdog.Enabled = false
		cfg.Startup = nil
	}

	log.Info().Str("config", configPath).Bool("one_shot", oneShot).Msg("Starting lightshald")

	// Create application
	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()
	if oneShot {
		ctx = context.Background()
	}

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	failed := applySets(application, sets)

	if !oneShot {
		// Wait for shutdown
		application.Wait()
	}

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	if oneShot && failed > 0 {
		os.Exit(1)
	}
}

// applySets applies each id=color pair and returns how many failed
func applySets(application *app.App, sets setFlags) int {
	failed := 0
	for _, s := range sets {
		id, value, _ := strings.Cut(s, "=")
		color, err := app.ParseColor(value)
		if err == nil {
			err = application.Apply(strings.TrimSpace(id), color)
		}
		if err != nil {
			log.Error().Err(err).Str("set", s).Msg("Failed to set light")
			failed++
		}
	}
	return failed
}

// printHistory writes ledger entries to stdout, newest first, and returns the exit code
func printHistory(cfg *config.Config, key string, limit int) int {
	// Reading history must not touch the lights
	cfg.Watchdog.Enabled = false
	cfg.Startup = nil

	application, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create application")
		return 1
	}
	defer application.Stop()

	entries, err := application.History(key, limit)
	if err != nil {
		log.Error().Err(err).Str("history", key).Msg("Failed to read history")
		return 1
	}
	for _, e := range entries {
		payload, _ := json.Marshal(e.Payload)
		fmt.Printf("%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format(time.RFC3339), e.EventType, e.Light, payload)
	}
	return 0
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
