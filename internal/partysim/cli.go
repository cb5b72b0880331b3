package partysim

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/catador/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the logger, mirroring output to logFile when set.
func SetupLogging(logFile, format string) error {
	var out io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}

	if err := logger.Init(logger.WithOutput(out), logger.WithFormat(format)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return nil
}

// ShowHelp prints usage information for the party simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Catador Party Simulator
=======================

Plays a full blind tasting against a running server: creates an event,
binds one card per wine, starts the countdown, lets every player join,
assign, rate and submit concurrently, then reveals and checks the board.

Usage:
  go run ./cmd/party-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -players int
        Number of simulated participants (default 200)
  -tags int
        Number of wines on the table, at most 40 (default 6)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -minutes float
        Countdown length in minutes (default 30)
  -accuracy float
        Share of players who identify every wine (default 0.2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed uint
        Random seed, 0 picks one
  -keep
        Keep the event after the run
  -log string
        Also write logs to this file
  -json
        Log as JSON
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # A quick party
  go run ./cmd/party-sim -players 20

  # A crowded one against another host
  go run ./cmd/party-sim -players 2000 -tags 12 -workers 64 -url http://localhost:8080
`)
}
