// Command planner runs the travel planning service and talks to it.
//
//	planner serve -c planner.yaml
//	planner chat --session lisbon "A long weekend somewhere warm"
//	planner session get lisbon --remote http://localhost:8080
//	planner config
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jurni-app/planner/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "planner",
		Short: "Multi-agent travel planning service",
		Long: `Planner routes each conversational turn to the sub-agent of the session's
lifecycle phase (inspiration, planning, booking, pre-trip, in-trip and
post-trip) and streams the response back to the client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (JSON or YAML); PLANNER_* environment variables override it")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging to stderr")

	cmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSessionCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*server.Config, error) {
	cfg, err := server.LoadConfig(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (o *rootOptions) logger() *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
