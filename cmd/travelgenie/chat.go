package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/travelgenie/internal/session"
	"github.com/MrWong99/travelgenie/internal/tool"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the concierge in the terminal",
		Long:  "Start an interactive session. Commands: /clear resets the conversation, /tools lists tool status, /quit exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			inst, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), inst.cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = inst.close(shutdownCtx)
			}()

			return repl(ctx, inst.app.Sessions(), inst.app.Registry(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// repl runs a line-oriented conversation against a fresh session until EOF,
// /quit or ctx is done.
func repl(ctx context.Context, sessions *session.Manager, tools *tool.Registry, in io.Reader, out io.Writer) error {
	info, err := sessions.Create(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Delete(context.WithoutCancel(ctx), info.ID) }()

	fmt.Fprintln(out, "TravelGenie ready. Ask about flights, hotels, weather, places or events. /quit exits.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := sessions.Clear(info.ID); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "conversation cleared")
			continue
		case "/tools":
			printStatuses(out, tools.Statuses())
			continue
		}

		res, err := sessions.Send(ctx, info.ID, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, res.Answer)
		if res.LimitHit {
			fmt.Fprintf(out, "(stopped after %d steps)\n", res.Iterations)
		}
	}
}
