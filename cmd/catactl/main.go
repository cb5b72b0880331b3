// Command catactl drives a catador server from the terminal: hosts prepare
// events and run the clock, players can join by PIN.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/okian/catador/internal/client"
)

// URLEnv overrides the default server address.
const URLEnv = "CATADOR_URL"

const defaultURL = "http://localhost:9080"

type cli struct {
	url     string
	timeout time.Duration
	json    bool
	api     *client.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "catactl",
		Short: "Blind tasting host CLI",
		Long: `catactl talks to a catador server.
Hosts create an event, bind each wine label (tag) to a card of the Spanish
deck, start the countdown and reveal the results. Players join with the PIN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.api = client.New(c.url, client.WithTimeout(c.timeout))
		},
	}

	url := os.Getenv(URLEnv)
	if url == "" {
		url = defaultURL
	}
	root.PersistentFlags().StringVarP(&c.url, "url", "u", url, "server base URL (env "+URLEnv+")")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", client.DefaultTimeout, "request timeout")
	root.PersistentFlags().BoolVar(&c.json, "json", false, "output JSON")

	root.AddCommand(c.eventCmd())
	root.AddCommand(c.tagCmd())
	root.AddCommand(c.participantCmd())
	root.AddCommand(c.timerCmd())
	root.AddCommand(c.solutionCmd())
	root.AddCommand(c.leaderboardCmd())
	root.AddCommand(c.deckCmd())
	root.AddCommand(c.joinCmd())
	return root
}

// render prints v as JSON when --json is set, otherwise calls table.
func (c *cli) render(w io.Writer, v any, table func(io.Writer)) error {
	if c.json || table == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	table(w)
	return nil
}

func newTable(w io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
