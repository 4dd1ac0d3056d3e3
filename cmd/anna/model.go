package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jxucoder/anna/internal/localmodel"
)

var modelPathType string

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Choose the local model Anna runs on",
	Long: `Anna runs on a local model once she is autonomous: either an Ollama
model (mistral, llama, gemma) or a GGUF/GPT4All file served by an
OpenAI-compatible server such as llama-server.

  anna model detect                      Use the best installed Ollama model
  anna model use mistral                 Use a specific Ollama model
  anna model pull mistral                Download a model with Ollama
  anna model set-path FILE --type gguf   Use a model file
  anna model show                        Show the current selection
  anna model options                     List recommended models`,
}

var modelSetPathCmd = &cobra.Command{
	Use:   "set-path PATH",
	Short: "Use a GGUF or GPT4All model file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := localmodel.ParseModelType(modelPathType)
		if err != nil {
			return err
		}
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			if err := a.local.SetPath(cmd.Context(), path, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Local model set to %s (%s)\n", path, t)
			return nil
		})
	},
}

var modelUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Use an installed Ollama model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.local.SetOllama(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Local model set to %s\n", args[0])
			return nil
		})
	},
}

var modelDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Select the best installed Ollama model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return withApp(func(a *app) error {
			name, err := a.local.Detect(cmd.Context())
			if err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintln(out, "No supported model found. Install one with `anna model pull mistral`.")
				return nil
			}
			fmt.Fprintf(out, "Local model: %s\n", name)
			return nil
		})
	},
}

var modelPullCmd = &cobra.Command{
	Use:   "pull NAME",
	Short: "Download a model with Ollama",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return withApp(func(a *app) error {
			fmt.Fprintf(out, "Pulling %s, this can take a while...\n", args[0])
			if err := a.local.Pull(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "Pulled %s, now Anna's local model.\n", args[0])
			return nil
		})
	},
}

var modelShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the selected local model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return printLocalModel(cmd.Context(), cmd.OutOrStdout(), a)
		})
	},
}

var modelOptionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List recommended local models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printRecommended(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	modelSetPathCmd.Flags().StringVar(&modelPathType, "type", string(localmodel.TypeGGUF), "Model file type: gguf, gpt4all")

	modelCmd.AddCommand(modelSetPathCmd)
	modelCmd.AddCommand(modelUseCmd)
	modelCmd.AddCommand(modelDetectCmd)
	modelCmd.AddCommand(modelPullCmd)
	modelCmd.AddCommand(modelShowCmd)
	modelCmd.AddCommand(modelOptionsCmd)
	rootCmd.AddCommand(modelCmd)
}

// withApp opens the app, runs fn and closes it.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printLocalModel(ctx context.Context, out io.Writer, a *app) error {
	m, err := a.local.Current(ctx)
	if err != nil {
		return err
	}
	if m.Type == string(localmodel.TypeNone) {
		fmt.Fprintln(out, "No local model selected. Try `anna model detect` or `anna model options`.")
		return nil
	}

	fmt.Fprintf(out, "Local model: %s (%s)\n", m.Name, m.Type)
	if m.Path != "" {
		fmt.Fprintf(out, "  path:        %s\n", m.Path)
	}
	fmt.Fprintf(out, "  temperature: %.2f  max tokens: %d  top_p: %.2f\n", m.Temperature, m.MaxTokens, m.TopP)
	fmt.Fprintf(out, "  queries:     %d  tokens: %d\n", m.Queries, m.Tokens)

	caps := a.local.Capabilities(ctx)
	if caps["available"] != true {
		fmt.Fprintln(out, "  \033[33m!\033[0m not available right now")
		return nil
	}
	fmt.Fprintln(out, "  \033[32m✓\033[0m available")
	keys := make([]string, 0, len(caps))
	for k, v := range caps {
		if v == true && k != "available" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "    - %s\n", k)
	}
	return nil
}

func printRecommended(out io.Writer) {
	fmt.Fprintln(out, "Recommended local models:")
	for _, r := range localmodel.Recommended() {
		fmt.Fprintf(out, "  %-22s %-16s %s\n", r.Name, r.Type, r.Description)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Ollama models: anna model pull NAME, then anna model use NAME")
	fmt.Fprintln(out, "Model files:   anna model set-path FILE --type gguf|gpt4all")
}

// isNotConfigured reports whether err means no local model is selected.
func isNotConfigured(err error) bool {
	return errors.Is(err, localmodel.ErrNotConfigured)
}
