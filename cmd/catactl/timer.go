package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	service "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/client"
	"github.com/okian/catador/internal/domain/model"
	"github.com/okian/catador/internal/domain/ranking"
	"github.com/okian/catador/internal/domain/scoring"
)

type timerAction func(api *client.Client, ctx context.Context, id model.EventID, d time.Duration) (model.TimerSnapshot, error)

func ignoreDuration(f func(*client.Client, context.Context, model.EventID) (model.TimerSnapshot, error)) timerAction {
	return func(api *client.Client, ctx context.Context, id model.EventID, _ time.Duration) (model.TimerSnapshot, error) {
		return f(api, ctx, id)
	}
}

func (c *cli) timerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "timer", Short: "Control the event countdown"}
	cmd.AddCommand(
		c.timerSubCmd("start", "Start the countdown", true, (*client.Client).StartTimer),
		c.timerSubCmd("extend", "Add minutes to the countdown", true, (*client.Client).ExtendTimer),
		c.timerSubCmd("pause", "Pause the countdown", false, ignoreDuration((*client.Client).PauseTimer)),
		c.timerSubCmd("resume", "Resume a paused countdown", false, ignoreDuration((*client.Client).ResumeTimer)),
		c.timerSubCmd("stop", "Clear the countdown", false, ignoreDuration((*client.Client).StopTimer)),
		c.timerSubCmd("status", "Show the countdown", false, ignoreDuration((*client.Client).TimerState)),
	)
	return cmd
}

func (c *cli) timerSubCmd(use, short string, needsMinutes bool, action timerAction) *cobra.Command {
	var minutes float64
	cmd := &cobra.Command{
		Use:   use + " <event-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Duration(minutes * float64(time.Minute))
			if needsMinutes && d <= 0 {
				return fmt.Errorf("--minutes must be positive")
			}
			snap, err := action(c.api, ctxOf(cmd), model.EventID(args[0]), d)
			if err != nil {
				return err
			}
			return c.printTimer(cmd.OutOrStdout(), snap)
		},
	}
	if needsMinutes {
		cmd.Flags().Float64VarP(&minutes, "minutes", "m", 0, "duration in minutes")
		_ = cmd.MarkFlagRequired("minutes")
	}
	return cmd
}

func (c *cli) printTimer(w io.Writer, snap model.TimerSnapshot) error {
	return c.render(w, snap, func(w io.Writer) {
		tw := newTable(w, table.Row{"Event", "Status", "Remaining", "Expires"})
		expires := ""
		if snap.Timer.ExpiresAt != nil {
			expires = snap.Timer.ExpiresAt.Local().Format(time.TimeOnly)
		}
		remaining := (time.Duration(snap.RemainingMs) * time.Millisecond).Round(time.Second)
		tw.AppendRow(table.Row{snap.EventID, snap.Status, remaining, expires})
		tw.Render()
	})
}

func (c *cli) leaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard <event-id>",
		Short: "Show the podium and the rest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := c.api.Leaderboard(ctxOf(cmd), model.EventID(args[0]))
			if err != nil {
				return err
			}
			return c.printLeaderboard(cmd.OutOrStdout(), board)
		},
	}
}

func (c *cli) printLeaderboard(w io.Writer, board *service.Leaderboard) error {
	return c.render(w, board, func(w io.Writer) {
		if board.Status != service.StatusReady {
			fmt.Fprintf(w, "results %s", board.Status)
			if board.Reason != "" {
				fmt.Fprintf(w, ": %s", board.Reason)
			}
			fmt.Fprintf(w, " (%d submitted)\n", board.Submitted)
			return
		}

		tw := newTable(w, table.Row{"Rank", "Name", "Points", "Correct", "Forced"})
		tw.SetTitle("Participants")
		appendRanked(tw, board.Participants, func(s scoring.ParticipantScore) table.Row {
			forced := ""
			if s.Forced {
				forced = "yes"
			}
			return table.Row{s.Name, s.Total, s.Correct, forced}
		})
		tw.Render()

		tw = newTable(w, table.Row{"Rank", "Tag", "Wine", "Card", "Points", "Stars"})
		tw.SetTitle("Wines")
		appendRanked(tw, board.Tags, func(m scoring.TagMerit) table.Row {
			return table.Row{m.TagID, m.TagName, m.CardID, m.Points, fmt.Sprintf("%.1f", m.AverageStars)}
		})
		tw.Render()
	})
}

func appendRanked[T ranking.Rankable](tw table.Writer, board ranking.Board[T], row func(T) table.Row) {
	for _, r := range board.Podium {
		tw.AppendRow(append(table.Row{r.Rank}, row(r.Item)...))
	}
	if len(board.Podium) > 0 && len(board.Rest) > 0 {
		tw.AppendSeparator()
	}
	for _, r := range board.Rest {
		tw.AppendRow(append(table.Row{r.Rank}, row(r.Item)...))
	}
}
