package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chase3718/ttymidi/internal/bridge"
	"github.com/chase3718/ttymidi/internal/config"
	"github.com/chase3718/ttymidi/internal/serialport"
	"github.com/chase3718/ttymidi/internal/seq"
)

// -------------------- Logger --------------------

// logger is the process-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(verbose, quiet bool) {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose && !quiet, // include file:line in verbose mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Main --------------------

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse("ttymidi", args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "ttymidi:", err)
		return 1
	}

	initLogger(cfg.Verbose, cfg.Quiet)
	logger.Info("ttymidi starting",
		"serial", cfg.Device,
		"baud", cfg.BaudRate,
		"backend", cfg.Backend,
		"name", cfg.Name,
		"verbose", cfg.Verbose,
		"quiet", cfg.Quiet,
		"print_only", cfg.PrintOnly,
	)

	// SIGINT/SIGTERM only stop the pumps; teardown happens in bridge.Run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, err := seq.Open(cfg.Name, logger)
	if err != nil {
		logger.Error("midi: cannot open client", "name", cfg.Name, "err", err)
		return 1
	}

	port, err := serialport.Open(serialport.Config{
		Device:   cfg.Device,
		BaudRate: cfg.BaudRate,
		Backend:  cfg.Backend,
		Logger:   logger,
	})
	if err != nil {
		_ = bus.Close()
		return 1
	}

	if cfg.PrintOnly {
		logger.Info("super debug mode: only printing the signal to screen, nothing else")
	}

	b := bridge.New(port, bus, bridge.Options{
		Logger:      logger,
		Output:      os.Stdout,
		Quiet:       cfg.Quiet,
		PrintOnly:   cfg.PrintOnly,
		PollTimeout: time.Duration(cfg.PollTimeout),
	})
	if err := b.Run(ctx); err != nil {
		logger.Error("ttymidi stopped on error", "err", err)
		return 1
	}
	logger.Info("ttymidi done")
	return 0
}
