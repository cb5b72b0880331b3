package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/okian/catador/internal/domain/model"
)

func (c *cli) eventCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "event", Short: "Manage tasting events"}
	cmd.AddCommand(c.eventCreateCmd())
	cmd.AddCommand(c.eventListCmd())
	cmd.AddCommand(c.eventShowCmd())
	cmd.AddCommand(c.eventPinCmd())
	cmd.AddCommand(c.eventDeleteCmd())
	cmd.AddCommand(c.eventRevealCmd())
	return cmd
}

func (c *cli) eventCreateCmd() *cobra.Command {
	var name, date string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.api.CreateEvent(ctxOf(cmd), name, date)
			if err != nil {
				return err
			}
			return c.printEvents(cmd.OutOrStdout(), e)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "event name")
	cmd.Flags().StringVar(&date, "date", time.Now().Format(time.DateOnly), "event date")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) eventListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := c.api.ListEvents(ctxOf(cmd))
			if err != nil {
				return err
			}
			return c.printEvents(cmd.OutOrStdout(), events...)
		},
	}
}

func (c *cli) eventShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.api.GetEvent(ctxOf(cmd), model.EventID(args[0]))
			if err != nil {
				return err
			}
			return c.printEvents(cmd.OutOrStdout(), e)
		},
	}
}

func (c *cli) eventPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <pin>",
		Short: "Find an event by its PIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.api.EventByPIN(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			return c.printEvents(cmd.OutOrStdout(), e)
		},
	}
}

func (c *cli) eventDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete an event and all its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.api.DeleteEvent(ctxOf(cmd), model.EventID(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) eventRevealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reveal <event-id>",
		Short: "Finalize the event and show the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := c.api.Reveal(ctxOf(cmd), model.EventID(args[0]))
			if err != nil {
				return err
			}
			return c.printLeaderboard(cmd.OutOrStdout(), board)
		},
	}
}

func (c *cli) printEvents(w io.Writer, events ...*model.Event) error {
	return c.render(w, events, func(w io.Writer) {
		tw := newTable(w, table.Row{"ID", "Name", "Date", "PIN", "Timer", "Finalized"})
		now := time.Now()
		for _, e := range events {
			tw.AppendRow(table.Row{e.ID, e.Name, e.Date, e.PIN, e.Timer.Status(now), e.Finalized})
		}
		tw.Render()
	})
}

func (c *cli) deckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deck",
		Short: "List the Spanish deck",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := c.api.Deck(ctxOf(cmd))
			if err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), cards, func(w io.Writer) {
				tw := newTable(w, table.Row{"Card", "Name"})
				for _, card := range cards {
					tw.AppendRow(table.Row{card.ID, card.Name})
				}
				tw.Render()
			})
		},
	}
}

func (c *cli) tagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tag", Short: "Bind wine labels to cards"}

	var tagName, card string
	add := &cobra.Command{
		Use:   "add <event-id> <tag-id>",
		Short: "Add a tag bound to a card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.api.AddTag(ctxOf(cmd), model.EventID(args[0]), model.TagID(args[1]), tagName, model.CardID(card))
			if err != nil {
				return err
			}
			return c.printTags(cmd.OutOrStdout(), []model.TagDefinition{t})
		},
	}
	add.Flags().StringVar(&tagName, "name", "", "wine name shown after reveal")
	add.Flags().StringVar(&card, "card", "", "card id, e.g. oros-1")
	_ = add.MarkFlagRequired("card")

	list := &cobra.Command{
		Use:   "list <event-id>",
		Short: "List tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := c.api.ListTags(ctxOf(cmd), model.EventID(args[0]))
			if err != nil {
				return err
			}
			return c.printTags(cmd.OutOrStdout(), tags)
		},
	}

	remove := &cobra.Command{
		Use:   "remove <event-id> <tag-id>",
		Short: "Remove a tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.api.RemoveTag(ctxOf(cmd), model.EventID(args[0]), model.TagID(args[1]))
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func (c *cli) printTags(w io.Writer, tags []model.TagDefinition) error {
	return c.render(w, tags, func(w io.Writer) {
		tw := newTable(w, table.Row{"Tag", "Name", "Card"})
		for _, t := range tags {
			tw.AppendRow(table.Row{t.TagID, t.TagName, t.CardName})
		}
		tw.Render()
	})
}

func (c *cli) participantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "participant", Short: "Manage the roster"}

	add := &cobra.Command{
		Use:   "add <event-id> <name>",
		Short: "Add a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.api.AddParticipant(ctxOf(cmd), model.EventID(args[0]), args[1])
			if err != nil {
				return err
			}
			return c.printParticipants(cmd.OutOrStdout(), []model.Participant{p})
		},
	}

	list := &cobra.Command{
		Use:   "list <event-id>",
		Short: "List participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := c.api.ListParticipants(ctxOf(cmd), model.EventID(args[0]))
			if err != nil {
				return err
			}
			return c.printParticipants(cmd.OutOrStdout(), list)
		},
	}

	remove := &cobra.Command{
		Use:   "remove <event-id> <participant-id>",
		Short: "Remove a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.api.RemoveParticipant(ctxOf(cmd), model.EventID(args[0]), model.ParticipantID(args[1]))
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func (c *cli) printParticipants(w io.Writer, list []model.Participant) error {
	return c.render(w, list, func(w io.Writer) {
		tw := newTable(w, table.Row{"ID", "Name"})
		for _, p := range list {
			tw.AppendRow(table.Row{p.ID, p.Name})
		}
		tw.Render()
	})
}

func (c *cli) solutionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "solution", Short: "Manage the host solution"}

	var assign map[string]string
	set := &cobra.Command{
		Use:   "set <event-id>",
		Short: "Store the solution; without --assign it follows the tag bindings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var assignments map[model.TagID]model.CardID
			if len(assign) > 0 {
				assignments = make(map[model.TagID]model.CardID, len(assign))
				for tag, card := range assign {
					assignments[model.TagID(tag)] = model.CardID(card)
				}
			}
			sol, err := c.api.SetSolution(ctxOf(cmd), model.EventID(args[0]), assignments)
			if err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), sol, func(w io.Writer) {
				tags := make([]string, 0, len(sol.Assignments))
				for tag := range sol.Assignments {
					tags = append(tags, string(tag))
				}
				sort.Strings(tags)
				tw := newTable(w, table.Row{"Tag", "Card"})
				for _, tag := range tags {
					tw.AppendRow(table.Row{tag, sol.Assignments[model.TagID(tag)]})
				}
				tw.Render()
			})
		},
	}
	set.Flags().StringToStringVar(&assign, "assign", nil, "tag=card pairs, e.g. tag1=oros-1")

	cmd.AddCommand(set)
	return cmd
}

func (c *cli) joinCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "join <pin>",
		Short: "Join an event and reserve a display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := ctxOf(cmd)
			e, err := c.api.EventByPIN(ctx, args[0])
			if err != nil {
				return err
			}
			sid, err := c.api.NewSession(ctx, e.ID)
			if err != nil {
				return err
			}
			view, err := c.api.SelectName(ctx, e.ID, sid, name)
			if err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), view, func(w io.Writer) {
				tw := newTable(w, table.Row{"Event", "Session", "Name", "State"})
				tw.AppendRow(table.Row{e.ID, sid, strings.TrimSpace(view.Progress.ParticipantName), view.State})
				tw.Render()
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
