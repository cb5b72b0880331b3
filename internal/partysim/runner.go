// Package partysim simulates a tasting party against a running catador
// server: it prepares an event, lets many players play concurrently, reveals
// the results and checks the leaderboard.
package partysim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/catador/internal/client"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
)

// Result is what a run produced.
type Result struct {
	Event       *model.Event
	Leaderboard *Board
	Stats       *Stats
}

// Run executes the complete simulation.
func Run(ctx context.Context, config *Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Seed == 0 {
		config.Seed = rand.Uint64()
	}
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting party simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("players", config.Players),
		logger.Int("tags", config.Tags),
		logger.Int("workers", config.Workers),
		logger.Float64("minutes", config.Minutes),
		logger.Float64("accuracy", config.Accuracy),
		logger.Any("seed", config.Seed))

	api := client.New(config.BaseURL, client.WithTimeout(config.Timeout))

	// Step 1: Check service health
	if err := api.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Prepare the event
	t, event, err := prepare(ctx, config, api, stats)
	if err != nil {
		return nil, fmt.Errorf("event preparation failed: %w", err)
	}
	if !config.Keep {
		defer func() {
			if err := api.DeleteEvent(context.WithoutCancel(ctx), event.ID); err != nil {
				logger.Get().Warn(ctx, "failed to delete event", logger.Error(err))
			}
		}()
	}

	// Step 3: Start the countdown and play
	if _, err := api.StartTimer(ctx, event.ID, time.Duration(config.Minutes*float64(time.Minute))); err != nil {
		return nil, fmt.Errorf("timer start failed: %w", err)
	}
	stats.Requests++
	playAll(ctx, config, api, t, stats)

	// Step 4: Solution and reveal
	if _, err := api.SetSolution(ctx, event.ID, nil); err != nil {
		return nil, fmt.Errorf("solution failed: %w", err)
	}
	lb, err := api.Reveal(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("reveal failed: %w", err)
	}
	stats.Requests += 2

	// Step 5: Verify
	board := &Board{Leaderboard: lb}
	if err := verifyResults(ctx, config, board, stats); err != nil {
		return nil, fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	logger.Get().Info(ctx, "simulation completed successfully")
	return &Result{Event: event, Leaderboard: board, Stats: stats}, nil
}

// prepare creates the event and binds one shuffled card per tag.
func prepare(ctx context.Context, config *Config, api *client.Client, stats *Stats) (table, *model.Event, error) {
	rng := rand.New(rand.NewPCG(config.Seed, 0))

	deck, err := api.Deck(ctx)
	if err != nil {
		return table{}, nil, err
	}
	event, err := api.CreateEvent(ctx, "Simulated tasting", time.Now().Format(time.DateOnly))
	if err != nil {
		return table{}, nil, err
	}
	stats.Requests += 2

	t := table{eventID: event.ID}
	for i, j := range rng.Perm(len(deck))[:config.Tags] {
		tag, err := api.AddTag(ctx, event.ID, model.TagID(fmt.Sprintf("tag-%02d", i+1)), fmt.Sprintf("Vino %d", i+1), deck[j].ID)
		if err != nil {
			return table{}, nil, err
		}
		stats.Requests++
		t.tags = append(t.tags, tag)
		t.cards = append(t.cards, tag.CardID)
	}

	logger.Get().Info(ctx, "event ready",
		logger.String("eventId", string(event.ID)),
		logger.String("pin", event.PIN),
		logger.Int("tags", len(t.tags)))
	return t, event, nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var successRate, requestsPerSecond float64

	if stats.PlayersStarted > 0 {
		successRate = float64(stats.PlayersFinalized) / float64(stats.PlayersStarted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Requests) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("playersStarted", stats.PlayersStarted),
		logger.Int("playersFinalized", stats.PlayersFinalized),
		logger.Int("nameConflicts", stats.NameConflicts),
		logger.Int("playersFailed", stats.PlayersFailed),
		logger.Int("submitted", stats.Submitted),
		logger.Int("requests", stats.Requests),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}
