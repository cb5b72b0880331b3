package partysim

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"

	service "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/domain/ranking"
	"github.com/okian/catador/pkg/logger"
)

// Board wraps the revealed leaderboard for printing.
type Board struct {
	*service.Leaderboard
}

// verifyResults checks the leaderboard against what the players did.
func verifyResults(ctx context.Context, config *Config, board *Board, stats *Stats) error {
	logger.Get().Info(ctx, "verifying results")

	if board.Status != service.StatusReady {
		return fmt.Errorf("leaderboard is %s (%s)", board.Status, board.Reason)
	}
	stats.Submitted = board.Submitted
	if board.Submitted != stats.PlayersFinalized {
		return fmt.Errorf("leaderboard counts %d submissions, players finalized %d",
			board.Submitted, stats.PlayersFinalized)
	}
	if err := verifyOrdering(board); err != nil {
		return err
	}

	if config.Verbose {
		board.Render(logWriter{ctx: ctx})
	}
	logger.Get().Info(ctx, "result verification completed")
	return nil
}

// verifyOrdering checks competition ranking: totals never increase down the
// board, ties share a rank and the podium holds ranks 1 to 3 only.
func verifyOrdering(board *Board) error {
	rows := slices.Concat(board.Participants.Podium, board.Participants.Rest)
	for i, r := range board.Participants.Podium {
		if r.Rank > ranking.PodiumRanks {
			return fmt.Errorf("podium entry %d has rank %d", i, r.Rank)
		}
	}
	for _, r := range board.Participants.Rest {
		if r.Rank <= ranking.PodiumRanks {
			return fmt.Errorf("rest entry %s has podium rank %d", r.Item.Name, r.Rank)
		}
	}
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		switch {
		case cur.Item.Total > prev.Item.Total:
			return fmt.Errorf("leaderboard not sorted: %s (%d) above %s (%d)",
				prev.Item.Name, prev.Item.Total, cur.Item.Name, cur.Item.Total)
		case cur.Item.Total == prev.Item.Total && cur.Rank != prev.Rank:
			return fmt.Errorf("tied totals ranked %d and %d", prev.Rank, cur.Rank)
		case cur.Item.Total < prev.Item.Total && cur.Rank != i+1:
			return fmt.Errorf("entry %d ranked %d", i+1, cur.Rank)
		}
	}
	return nil
}

// Render prints the participant podium.
func (b *Board) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Podium")
	tw.AppendHeader(table.Row{"Rank", "Name", "Points", "Correct"})
	for _, r := range b.Participants.Podium {
		tw.AppendRow(table.Row{r.Rank, r.Item.Name, r.Item.Total, r.Item.Correct})
	}
	tw.AppendFooter(table.Row{"", "submitted", b.Submitted, ""})
	tw.Render()
}

// logWriter forwards rendered tables to the logger.
type logWriter struct {
	ctx context.Context
}

func (w logWriter) Write(p []byte) (int, error) {
	logger.Get().Info(w.ctx, "\n"+string(p))
	return len(p), nil
}
