package partysim

import (
	"fmt"
	"time"
)

// Config holds configuration for a simulated tasting party.
type Config struct {
	BaseURL  string        // Base URL of the service
	Players  int           // Number of simulated participants
	Tags     int           // Number of wines on the table
	Workers  int           // Number of concurrent workers
	Minutes  float64       // Countdown length
	Accuracy float64       // Share of players who identify every wine
	Timeout  time.Duration // HTTP request timeout
	Keep     bool          // Keep the event after the run
	Verbose  bool          // Enable verbose logging
	Seed     uint64        // Random seed; zero picks one
}

// Validate rejects configurations the simulator cannot run.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("base url is required")
	case c.Players <= 0:
		return fmt.Errorf("players must be positive")
	case c.Tags <= 0 || c.Tags > MaxTags:
		return fmt.Errorf("tags must be between 1 and %d", MaxTags)
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive")
	case c.Minutes <= 0:
		return fmt.Errorf("minutes must be positive")
	case c.Accuracy < 0 || c.Accuracy > 1:
		return fmt.Errorf("accuracy must be between 0 and 1")
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	PlayersStarted   int
	PlayersFinalized int
	NameConflicts    int
	PlayersFailed    int
	Requests         int
	Submitted        int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
