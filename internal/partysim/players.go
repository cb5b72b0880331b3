package partysim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/catador/internal/client"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/pkg/logger"
)

// outcome of a single simulated player.
type outcome int

const (
	outcomeFinalized outcome = iota
	outcomeNameTaken
	outcomeFailed
)

// table is what every player sees: the event, its tags and the bound cards.
type table struct {
	eventID model.EventID
	tags    []model.TagDefinition
	cards   []model.CardID
}

// player plays one full round: join, pick a name, assign, rate, submit.
type player struct {
	api      *client.Client
	rng      *rand.Rand
	accuracy float64
	requests *int64
}

func (p *player) call() { atomic.AddInt64(p.requests, 1) }

func (p *player) play(ctx context.Context, t table, index int) outcome {
	log := logger.Get()

	p.call()
	sid, err := p.api.NewSession(ctx, t.eventID)
	if err != nil {
		log.Debug(ctx, "session creation failed", logger.Int("player", index), logger.Error(err))
		return outcomeFailed
	}

	p.call()
	if _, err := p.api.SelectName(ctx, t.eventID, sid, playerName(index)); err != nil {
		if client.HasCode(err, "name_taken") {
			return outcomeNameTaken
		}
		log.Debug(ctx, "name selection failed", logger.Int("player", index), logger.Error(err))
		return outcomeFailed
	}

	cards := p.guess(t)
	for i, tag := range t.tags {
		p.call()
		if _, err := p.api.Assign(ctx, t.eventID, sid, tag.TagID, cards[i]); err != nil {
			log.Debug(ctx, "assignment failed", logger.Int("player", index), logger.Error(err))
			return outcomeFailed
		}
		p.call()
		if _, err := p.api.Rate(ctx, t.eventID, sid, tag.TagID, 1+p.rng.IntN(model.MaxRating)); err != nil {
			log.Debug(ctx, "rating failed", logger.Int("player", index), logger.Error(err))
			return outcomeFailed
		}
	}

	order := make([]model.TagID, len(t.tags))
	for i, j := range p.rng.Perm(len(t.tags)) {
		order[i] = t.tags[j].TagID
	}
	p.call()
	if _, err := p.api.Reorder(ctx, t.eventID, sid, order); err != nil {
		log.Debug(ctx, "reorder failed", logger.Int("player", index), logger.Error(err))
		return outcomeFailed
	}

	p.call()
	if _, err := p.api.Finalize(ctx, t.eventID, sid); err != nil {
		log.Debug(ctx, "finalize failed", logger.Int("player", index), logger.Error(err))
		return outcomeFailed
	}
	return outcomeFinalized
}

// guess returns one card per tag. Accurate players pick the bound cards,
// the rest shuffle them.
func (p *player) guess(t table) []model.CardID {
	out := make([]model.CardID, len(t.tags))
	if p.rng.Float64() < p.accuracy {
		for i, tag := range t.tags {
			out[i] = tag.CardID
		}
		return out
	}
	for i, j := range p.rng.Perm(len(t.cards)) {
		out[i] = t.cards[j]
	}
	return out
}

func playerName(index int) string {
	return fmt.Sprintf("Catador %03d", index)
}

// playAll runs every player through a worker pool.
func playAll(ctx context.Context, config *Config, api *client.Client, t table, stats *Stats) {
	logger.Get().Info(ctx, "players joining",
		logger.Int("players", config.Players),
		logger.Int("workers", config.Workers))

	var (
		started   int64
		finalized int64
		taken     int64
		failed    int64
		requests  int64
	)

	jobs := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	var lastReport atomic.Int64
	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p := &player{
				api:      api,
				rng:      rand.New(rand.NewPCG(config.Seed, uint64(workerID))),
				accuracy: config.Accuracy,
				requests: &requests,
			}

			for index := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddInt64(&started, 1)
				switch p.play(ctx, t, index) {
				case outcomeFinalized:
					atomic.AddInt64(&finalized, 1)
				case outcomeNameTaken:
					atomic.AddInt64(&taken, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if config.Verbose && now-last >= int64(ProgressInterval) && lastReport.CompareAndSwap(last, now) {
					logger.Get().Info(ctx, "progress",
						logger.Int64("started", atomic.LoadInt64(&started)),
						logger.Int64("finalized", atomic.LoadInt64(&finalized)),
						logger.Int64("failed", atomic.LoadInt64(&failed)))
				}
			}
		}(w)
	}

	go func() {
		defer close(jobs)
		for i := 1; i <= config.Players; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()

	stats.PlayersStarted = int(atomic.LoadInt64(&started))
	stats.PlayersFinalized = int(atomic.LoadInt64(&finalized))
	stats.NameConflicts = int(atomic.LoadInt64(&taken))
	stats.PlayersFailed = int(atomic.LoadInt64(&failed))
	stats.Requests += int(atomic.LoadInt64(&requests))

	logger.Get().Info(ctx, "players done",
		logger.Int("finalized", stats.PlayersFinalized),
		logger.Int("nameConflicts", stats.NameConflicts),
		logger.Int("failed", stats.PlayersFailed))
}
