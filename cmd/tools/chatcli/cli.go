package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/app"
	"github.com/autostream/agent/backend/internal/config"
	"github.com/autostream/agent/backend/internal/logger"
	"github.com/autostream/agent/backend/internal/service/agent"
)

// turnRunner is the slice of the agent the loop needs.
type turnRunner interface {
	AdvanceTurn(ctx context.Context, sessionID, userText string) (agent.Turn, error)
}

func newCLIApp(in io.Reader, out io.Writer) *cli.App {
	cliApp := &cli.App{
		Name:   "chatcli",
		Usage:  "Chat with the AutoStream assistant in the terminal",
		Reader: in,
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session ID to continue (default: a new one)"},
			&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Value: 60 * time.Second, Usage: "Timeout for a single turn"},
			&cli.StringFlag{Name: "log-file", Value: "chatcli.log", Usage: "Where to write logs"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Also log to the terminal"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			var zl *zap.Logger
			if c.Bool("verbose") {
				zl, err = logger.New(cfg.Log)
			} else {
				zl, err = logger.NewFileOnly(cfg.Log, c.String("log-file"))
			}
			if err != nil {
				return fmt.Errorf("initialise logger: %w", err)
			}
			defer func() { _ = zl.Sync() }()

			services, err := app.Build(c.Context, cfg, zl)
			if err != nil {
				return err
			}

			sessionID := c.String("session")
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return chatLoop(c.Context, services.Agent, sessionID, c.Duration("timeout"), c.App.Reader, c.App.Writer)
		},
	}
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// chatLoop reads one message per line until exit, quit or EOF. A failed turn is
// reported and the session carries on.
func chatLoop(ctx context.Context, runner turnRunner, sessionID string, timeout time.Duration, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "AutoStream assistant. Type 'exit' or 'quit' to leave.")
	fmt.Fprintf(out, "Session: %s\n", sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(text) {
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "":
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, timeout)
		turn, err := runner.AdvanceTurn(turnCtx, sessionID, text)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Agent: %s\n", turn.Reply)
	}
}
