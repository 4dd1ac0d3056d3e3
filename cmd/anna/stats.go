package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:     "stats",
	Aliases: []string{"status"},
	Short:   "Show Anna's statistics",
	Long:    "Prints bootstrap progress, local model usage and memory figures.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			stats, err := a.companion.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if statsJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			printStats(out, stats)
			return nil
		})
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print machine-readable JSON")
	rootCmd.AddCommand(statsCmd)
}

// statsSections maps key prefixes to section titles, in display order.
var statsSections = []struct {
	prefix string
	title  string
}{
	{"bootstrap.", "Bootstrap"},
	{"local_model.", "Local model"},
	{"memory.", "Memory"},
	{"", "Other"},
}

// printStats groups the flat statistics map into titled sections.
func printStats(out io.Writer, stats map[string]any) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool, len(keys))
	for _, sec := range statsSections {
		var lines []string
		for _, k := range keys {
			if seen[k] || !strings.HasPrefix(k, sec.prefix) {
				continue
			}
			seen[k] = true
			lines = append(lines, fmt.Sprintf("  %-24s %s", strings.TrimPrefix(k, sec.prefix), formatStat(stats[k])))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintln(out, sec.title)
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}
	}
}

func formatStat(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%.2f", v)
	case bool:
		if v {
			return "yes"
		}
		return "no"
	default:
		return fmt.Sprint(v)
	}
}
