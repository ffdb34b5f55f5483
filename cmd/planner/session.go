package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jurni-app/planner/server"
)

func newSessionCmd(_ *rootOptions) *cobra.Command {
	var remote, token string

	client := func() *server.Client {
		return server.NewClient(http.DefaultClient, remote, token)
	}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions on a planner server",
	}
	cmd.PersistentFlags().StringVar(&remote, "remote", "http://localhost:8080", "planner server URL")
	cmd.PersistentFlags().StringVar(&token, "token", os.Getenv("PLANNER_TOKEN"), "bearer token")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create [id]",
			Short: "Create a session",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var id string
				if len(args) > 0 {
					id = args[0]
				}
				s, err := client().CreateSession(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Print a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := client().GetSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			},
		},
		&cobra.Command{
			Use:   "close <id>",
			Short: "Close a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := client().CloseSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "closed %s in %s\n", s.ID, s.Phase)
				return nil
			},
		},
		&cobra.Command{
			Use:   "save <id>",
			Short: "Save a session's itinerary as a trip",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				trip, err := client().SaveItinerary(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), trip)
			},
		},
	)
	return cmd
}
