package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jxucoder/anna/internal/companion"
)

var chatSpeaker string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk with Anna",
	Long: `Starts an interactive conversation. Anna answers with the mentor until
she is autonomous, then with her local model. Type "au revoir" or "bye" to
leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		speaker := chatSpeaker
		if speaker == "" {
			speaker = cfg.Speaker
		}
		return withApp(func(a *app) error {
			return chatLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), a.companion, speaker)
		})
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSpeaker, "speaker", "", "Your name in the conversation (default $ANNA_SPEAKER)")
	rootCmd.AddCommand(chatCmd)
}

// replier is the part of the companion the chat loop needs.
type replier interface {
	Reply(ctx context.Context, conversationID, speaker, message string) (*companion.Reply, error)
}

// chatLoop reads one message per line until EOF or a quit word.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, c replier, speaker string) error {
	conversationID := uuid.NewString()
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "Anna: Bonjour ! (type \"au revoir\" to leave)")
	for {
		fmt.Fprintf(out, "%s> ", speaker)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if companion.IsQuit(message) {
			// Anna answers the farewell herself when she can.
			goodbye := "Au revoir !"
			if reply, err := c.Reply(ctx, conversationID, speaker, message); err == nil {
				goodbye = reply.Text
			}
			fmt.Fprintf(out, "Anna: %s\n", goodbye)
			return nil
		}

		reply, err := c.Reply(ctx, conversationID, speaker, message)
		switch {
		case errors.Is(err, companion.ErrNoBackend):
			return fmt.Errorf("%w (configure a mentor key or run `anna model detect`)", err)
		case isNotConfigured(err):
			return fmt.Errorf("%w (run `anna model detect`)", err)
		case err != nil:
			fmt.Fprintf(out, "\033[31m!\033[0m %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Anna: %s\n", reply.Text)
	}
}
