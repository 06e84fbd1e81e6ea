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

	"github.com/felixgeelhaar/rehearse/internal/client"
	"github.com/felixgeelhaar/rehearse/internal/session"
)

const endCommand = "/end"

var (
	flagRole    string
	flagLevel   string
	flagPersona string
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run an interview in the terminal",
	Long: `Starts a session and asks questions one at a time. Type each answer on a
single line. Type /end (or close stdin) to finish and see your feedback.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := session.Config{Role: flagRole, Level: flagLevel, Persona: flagPersona}
		return runPractice(ctx, newClient(), cfg, os.Stdin, cmd.OutOrStdout())
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <session-id>",
	Short: "Print the feedback summary for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := newClient().Feedback(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get feedback: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	practiceCmd.Flags().StringVar(&flagRole, "role", "", "software_engineer, sales or retail")
	practiceCmd.Flags().StringVar(&flagLevel, "level", "", "junior, mid or senior")
	practiceCmd.Flags().StringVar(&flagPersona, "persona", "", "efficient, confused, chatty, friendly or challenging")
}

// runPractice drives one interview from in, one answer per line, printing the
// transcript to out as it grows
func runPractice(ctx context.Context, api client.API, cfg session.Config, in io.Reader, out io.Writer) error {
	iv := client.NewInterview(api, cfg, client.WithMessageHandler(func(m client.Message) {
		printMessage(out, m)
	}))

	iv.Start(ctx)
	if iv.State() != client.StateInProgress {
		return fmt.Errorf("could not start an interview at %s", flagAddrOr(api))
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	prompt(out)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			text := strings.TrimSpace(line)
			switch {
			case text == "":
			case text == endCommand:
				break loop
			default:
				if err := iv.Answer(ctx, text); err != nil {
					fmt.Fprintf(out, "! %v\n", err)
				}
			}
			prompt(out)
		}
	}

	// Finish even after Ctrl-C so the summary is still shown.
	return iv.Finish(context.WithoutCancel(ctx))
}

func printMessage(out io.Writer, m client.Message) {
	switch m.Speaker {
	case client.SpeakerInterviewer:
		fmt.Fprintf(out, "\nInterviewer: %s\n", m.Text)
	case client.SpeakerCandidate:
		// Already on screen as typed.
	default:
		fmt.Fprintf(out, "\n%s\n", m.Text)
	}
}

func prompt(out io.Writer) {
	fmt.Fprint(out, "> ")
}

func flagAddrOr(api client.API) string {
	if c, ok := api.(*client.Client); ok {
		return c.BaseURL()
	}
	return flagAddr
}
