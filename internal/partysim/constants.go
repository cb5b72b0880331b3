package partysim

import "time"

// MaxTags is bounded by the deck: every tag needs its own card.
const MaxTags = 40

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	ProgressInterval     = time.Second
	PercentageMultiplier = 100
)
