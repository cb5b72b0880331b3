package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/catador/internal/partysim"
)

// Default configuration constants.
const (
	defaultPlayers     = 200
	defaultTags        = 6
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultMinutes     = 30
	defaultAccuracy    = 0.2
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		players  = flag.Int("players", defaultPlayers, "Number of simulated participants")
		tags     = flag.Int("tags", defaultTags, "Number of wines on the table")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		minutes  = flag.Float64("minutes", defaultMinutes, "Countdown length in minutes")
		accuracy = flag.Float64("accuracy", defaultAccuracy, "Share of players who identify every wine")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed     = flag.Uint64("seed", 0, "Random seed, 0 picks one")
		keep     = flag.Bool("keep", false, "Keep the event after the run")
		logFile  = flag.String("log", "", "Also write logs to this file")
		jsonLogs = flag.Bool("json", false, "Log as JSON")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		partysim.ShowHelp()
		return
	}

	format := "text"
	if *jsonLogs {
		format = "json"
	}
	if err := partysim.SetupLogging(*logFile, format); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)

	config := &partysim.Config{
		BaseURL:  *baseURL,
		Players:  *players,
		Tags:     *tags,
		Workers:  *workers,
		Minutes:  *minutes,
		Accuracy: *accuracy,
		Timeout:  *timeout,
		Keep:     *keep,
		Verbose:  *verbose,
		Seed:     *seed,
	}

	result, err := partysim.Run(ctx, config)
	cancel()
	stop()
	if err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	result.Leaderboard.Render(os.Stdout)
}
