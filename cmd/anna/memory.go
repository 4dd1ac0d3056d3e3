package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jxucoder/anna/internal/memory"
)

var (
	memoryKind    string
	memorySpeaker string
	memoryLimit   int
	memorySince   time.Duration
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Search, consolidate and back up Anna's memories",
	Long: `  anna memory search famille --speaker Pierre    Search memories
  anna memory consolidate --since 24h            Summarise the last day
  anna memory backup                             Copy the database aside`,
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search memories, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := memory.Filter{Speaker: memorySpeaker, Limit: memoryLimit}
		if len(args) == 1 {
			f.Query = args[0]
		}
		if memoryKind != "" {
			k, err := memory.ParseKind(memoryKind)
			if err != nil {
				return err
			}
			f.Kind = k
		}
		return withApp(func(a *app) error {
			entries, err := a.memory.Search(cmd.Context(), f)
			if err != nil {
				return err
			}
			printMemories(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

var memoryConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Summarise recent memories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if memorySince <= 0 {
			return fmt.Errorf("--since must be positive")
		}
		out := cmd.OutOrStdout()
		return withApp(func(a *app) error {
			now := time.Now()
			c, err := a.memory.Consolidate(cmd.Context(), now.Add(-memorySince), now)
			if errors.Is(err, memory.ErrNothingToConsolidate) {
				fmt.Fprintf(out, "No memories in the last %s.\n", memorySince)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, c.Summary)
			if len(c.KeyEvents) > 0 {
				fmt.Fprintln(out, "Key events:")
				for _, e := range c.KeyEvents {
					fmt.Fprintf(out, "  - %s\n", e)
				}
			}
			return nil
		})
	},
}

var memoryBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the memory database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			path, err := a.memory.Backup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
			return nil
		})
	},
}

func init() {
	memorySearchCmd.Flags().StringVar(&memoryKind, "kind", "", "Memory kind: conversation, learning, preference, event, concept, relationship")
	memorySearchCmd.Flags().StringVar(&memorySpeaker, "speaker", "", "Only memories from this speaker")
	memorySearchCmd.Flags().IntVar(&memoryLimit, "limit", 20, "Maximum number of results")
	memoryConsolidateCmd.Flags().DurationVar(&memorySince, "since", 24*time.Hour, "Period to summarise, ending now")

	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryConsolidateCmd)
	memoryCmd.AddCommand(memoryBackupCmd)
	rootCmd.AddCommand(memoryCmd)
}

func printMemories(out io.Writer, entries []memory.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No memories found.")
		return
	}
	for _, e := range entries {
		who := e.Speaker
		if who == "" {
			who = string(e.Kind)
		}
		fmt.Fprintf(out, "%s  %-10s %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), who, e.Content)
		if len(e.Tags) > 0 {
			fmt.Fprintf(out, "%18s tags: %s\n", "", strings.Join(e.Tags, ", "))
		}
	}
}
