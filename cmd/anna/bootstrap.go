package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jxucoder/anna/internal/bootstrap"
	"github.com/jxucoder/anna/internal/config"
)

var bootstrapYes bool

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Teach Anna the curriculum with the mentor model",
	Long: `Runs the learning phase: each curriculum domain is taught by the hosted
mentor and the vocabulary is stored locally. Once every domain is done Anna
becomes autonomous and only uses the local model.

Ctrl+C stops after saving progress; run the command again to resume.`,
	Args: cobra.NoArgs,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().BoolVarP(&bootstrapYes, "yes", "y", false, "Start without asking for confirmation")
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := a.learner.State(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Bootstrap phase: %s\n", st.Phase)

	switch st.Phase {
	case bootstrap.PhaseAutonomous:
		fmt.Fprintln(out, "Anna is autonomous and no longer needs the mentor.")
		return printLocalModel(ctx, out, a)
	case bootstrap.PhaseCompleted:
		// Every domain is learned; only the handover is left.
		return finishBootstrap(ctx, out, a.learner)
	}

	w := newWizard(cmd.InOrStdin(), out, nil)
	mentor := a.mentor
	if mentor == nil {
		key, err := askMentorKey(w, cfg.MentorProvider)
		if err != nil {
			return err
		}
		if key == "" {
			fmt.Fprintln(out, "Bootstrap skipped.")
			return nil
		}
		if err := saveMentorKey(cfg, key); err != nil {
			return err
		}
		mentor = newMentor(cfg)
	}

	total := len(a.curriculum)
	fmt.Fprintf(out, "Anna will learn %d domains from the %s mentor.\n", total, cfg.MentorProvider)
	if !bootstrapYes {
		ok, err := w.askYesNo("Start learning?", true)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Bootstrap cancelled.")
			return nil
		}
	}

	learner := a.newLearner(mentor, func(ev bootstrap.ProgressEvent) {
		printProgress(out, ev)
	})
	return finishBootstrap(ctx, out, learner)
}

// finishBootstrap runs learner and reports the readiness checks.
func finishBootstrap(ctx context.Context, out io.Writer, learner *bootstrap.Learner) error {
	readiness, err := learner.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(out, "\nInterrupted. Progress is saved; run `anna bootstrap` to resume.")
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintln(out)
	printReadiness(out, readiness)
	fmt.Fprintln(out, "Anna is now autonomous. Choose her local model with `anna model detect`.")
	return nil
}

// askMentorKey asks for the mentor API key. Typing "skip" returns "".
func askMentorKey(w *wizard, provider string) (string, error) {
	ck := findKey(keyForProvider(provider))
	fmt.Fprintf(w.out, "No %s API key configured.\n", provider)
	for {
		fmt.Fprintf(w.out, "Paste your %s (or 'skip'): ", ck.Key)
		input, err := w.readLine()
		if err != nil {
			return "", err
		}
		switch {
		case strings.EqualFold(input, "skip"):
			return "", nil
		case input == "":
			continue
		case ck.Prefix != "" && !strings.HasPrefix(input, ck.Prefix):
			fmt.Fprintf(w.out, "Expected prefix %q.\n", ck.Prefix)
			continue
		}
		return input, nil
	}
}

// saveMentorKey stores key in config.env and in the loaded configuration.
func saveMentorKey(c *config.Config, key string) error {
	values, err := config.ReadFile(c.FilePath())
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	name := keyForProvider(c.MentorProvider)
	values[name] = key
	if err := config.SaveFile(c.FilePath(), values); err != nil {
		return err
	}
	if name == "OPENAI_API_KEY" {
		c.OpenAIAPIKey = key
	} else {
		c.AnthropicAPIKey = key
	}
	return nil
}

func printProgress(out io.Writer, ev bootstrap.ProgressEvent) {
	prefix := fmt.Sprintf("[%d/%d] %s", ev.Index, ev.Total, ev.Domain.Name)
	switch {
	case !ev.Done:
		fmt.Fprintf(out, "%s ...\n", prefix)
	case ev.Err != nil:
		fmt.Fprintf(out, "%s \033[31m✗\033[0m %v\n", prefix, ev.Err)
	default:
		fmt.Fprintf(out, "%s \033[32m✓\033[0m +%d fr, +%d en\n", prefix, ev.AddedFR, ev.AddedEN)
	}
}

func printReadiness(out io.Writer, r *bootstrap.Readiness) {
	fmt.Fprintln(out, "Readiness checks:")
	for _, c := range r.Checks {
		mark := "\033[32m✓\033[0m"
		if !c.Passed {
			mark = "\033[31m✗\033[0m"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, c.Name)
	}
	if !r.Ready() {
		fmt.Fprintln(out, "Some checks failed; Anna continues on her own anyway.")
	}
}
