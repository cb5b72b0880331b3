package scoring

import "time"

// BonusTier awards Points to a correct assignment made within Within of the
// timer start.
type BonusTier struct {
	Within time.Duration
	Points int
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithBasePoints sets the points for a correct assignment.
func WithBasePoints(points int) Option {
	return func(e *Engine) {
		if points > 0 {
			e.basePoints = points
		}
	}
}

// WithPointsPerStar sets the merit points attributed per star.
func WithPointsPerStar(points int) Option {
	return func(e *Engine) {
		if points > 0 {
			e.pointsPerStar = points
		}
	}
}

// WithBonusTiers replaces the speed bonus tiers. Tiers are checked in the
// given order and the first match wins.
func WithBonusTiers(tiers ...BonusTier) Option {
	return func(e *Engine) {
		if len(tiers) > 0 {
			e.tiers = append([]BonusTier(nil), tiers...)
		}
	}
}
