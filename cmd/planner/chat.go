package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/server"
	"github.com/jurni-app/planner/session"
	"github.com/jurni-app/planner/stream"
)

// planner is what the chat loop needs from a local orchestrator or a
// remote server.
type planner interface {
	SubmitTurn(ctx context.Context, sessionID, message string, phase protocol.Phase, fn func(stream.Event) error) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	SaveItinerary(ctx context.Context, id string) (memory.Trip, error)
}

type localPlanner struct {
	orch  *orchestrator.Orchestrator
	owner string
}

func (l *localPlanner) SubmitTurn(ctx context.Context, sessionID, message string, phase protocol.Phase, fn func(stream.Event) error) error {
	s, err := l.orch.Submit(ctx, orchestrator.TurnRequest{
		SessionID: sessionID,
		Owner:     l.owner,
		Message:   message,
		PhaseHint: phase,
	})
	if err != nil {
		return err
	}

	var firstErr error
	for ev := range s.Events() {
		if firstErr != nil {
			continue
		}
		firstErr = fn(ev)
	}
	return firstErr
}

func (l *localPlanner) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return l.orch.Session(ctx, id, l.owner)
}

func (l *localPlanner) SaveItinerary(ctx context.Context, id string) (memory.Trip, error) {
	return l.orch.SaveItinerary(ctx, id, l.owner)
}

type chatOptions struct {
	session string
	phase   string
	user    string
	remote  string
	token   string
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the planner",
		Long: `Chat sends one message when given as arguments, otherwise it reads
messages from stdin until EOF. Inside the loop, /state prints the session
and /save stores its itinerary as a trip.

Without --remote the orchestrator runs in process using the loaded config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := opts.planner(root)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			c := &chat{
				planner:   p,
				out:       cmd.OutOrStdout(),
				sessionID: opts.session,
				phase:     protocol.Phase(opts.phase),
			}
			if len(args) > 0 {
				return c.turn(ctx, strings.Join(args, " "))
			}
			return c.loop(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "session id; empty starts a new session")
	cmd.Flags().StringVar(&opts.phase, "phase", "", "phase hint for the first turn")
	cmd.Flags().StringVar(&opts.user, "user", "", "user id for local sessions")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "planner server URL")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("PLANNER_TOKEN"), "bearer token for --remote")
	return cmd
}

func (o *chatOptions) planner(root *rootOptions) (planner, func(), error) {
	if o.remote != "" {
		return server.NewClient(http.DefaultClient, o.remote, o.token), func() {}, nil
	}

	cfg, err := root.load()
	if err != nil {
		return nil, nil, err
	}

	var observer observability.Observer = observability.Discard
	if root.verbose {
		observer = observability.NewSlogObserver(root.logger())
	}
	orch, err := orchestrator.New(&cfg.Orchestrator, orchestrator.WithObserver(observer))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return &localPlanner{orch: orch, owner: o.user}, func() { _ = orch.Close() }, nil
}

type chat struct {
	planner   planner
	out       io.Writer
	sessionID string
	phase     protocol.Phase
}

func (c *chat) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			return sc.Err()
		}

		line := strings.TrimSpace(sc.Text())
		var err error
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/state":
			err = c.state(ctx)
		case "/save":
			err = c.save(ctx)
		default:
			err = c.turn(ctx, line)
		}

		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

func (c *chat) turn(ctx context.Context, message string) error {
	err := c.planner.SubmitTurn(ctx, c.sessionID, message, c.phase, func(ev stream.Event) error {
		if c.sessionID == "" {
			c.sessionID = ev.SessionID
		}
		printEvent(c.out, ev)
		return nil
	})
	c.phase = ""
	return err
}

func (c *chat) state(ctx context.Context) error {
	if c.sessionID == "" {
		return errors.New("no session yet")
	}
	s, err := c.planner.GetSession(ctx, c.sessionID)
	if err != nil {
		return err
	}
	return printJSON(c.out, s)
}

func (c *chat) save(ctx context.Context) error {
	if c.sessionID == "" {
		return errors.New("no session yet")
	}
	trip, err := c.planner.SaveItinerary(ctx, c.sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "saved trip %s to %s\n", trip.ID, trip.Destination)
	return nil
}

func printEvent(w io.Writer, ev stream.Event) {
	switch ev.Type {
	case stream.EventContent:
		fmt.Fprint(w, ev.Text)
	case stream.EventStructured:
		fmt.Fprintf(w, "\n[%s] %s\n", ev.DataType, ev.Data)
	case stream.EventItinerary:
		if ev.Delta == nil {
			return
		}
		keys := make([]string, 0, len(ev.Delta.Set))
		for k := range ev.Delta.Set {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		fmt.Fprintf(w, "\n[itinerary] updated %s\n", strings.Join(keys, ", "))
	case stream.EventToolCall:
		if ev.ToolCall != nil {
			fmt.Fprintf(w, "\n[tool] %s(%s)\n", ev.ToolCall.Name, ev.ToolCall.Arguments)
		}
	case stream.EventTransition:
		fmt.Fprintf(w, "\n[phase] %s -> %s\n", ev.From, ev.To)
	case stream.EventWarning:
		fmt.Fprintf(w, "\n[warning %s] %s\n", ev.Code, ev.Message)
	case stream.EventComplete:
		closed := ""
		if ev.Closed {
			closed = ", closed"
		}
		fmt.Fprintf(w, "\n(%s, %s%s)\n", ev.Phase, ev.Status, closed)
	case stream.EventError:
		fmt.Fprintf(w, "\n[error %s] %s\n", ev.Code, ev.Message)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
