package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jxucoder/anna/internal/config"
	"github.com/jxucoder/anna/llm/ollama"
)

// configKey describes a single configuration value.
type configKey struct {
	Key    string
	Desc   string
	Secret bool
	Prefix string // expected prefix for validation (e.g. "sk-ant-"), empty = no check
}

// allConfigKeys lists every configurable value in display order.
var allConfigKeys = []configKey{
	{"ANTHROPIC_API_KEY", "Anthropic API key (mentor)", true, "sk-ant-"},
	{"OPENAI_API_KEY", "OpenAI API key (mentor)", true, "sk-"},
	{"ANNA_MENTOR_PROVIDER", "Mentor provider (anthropic, openai)", false, ""},
	{"ANNA_MENTOR_MODEL", "Mentor model name", false, ""},
	{"ANNA_MENTOR_RETRIES", "Attempts per mentor call", false, ""},
	{"ANNA_DOMAIN_PAUSE", "Pause between two learning domains", false, ""},
	{"ANNA_CURRICULUM", "YAML file replacing the built-in curriculum", false, ""},
	{"ANNA_OLLAMA_URL", "Ollama server URL", false, ""},
	{"ANNA_LOCAL_SERVER_URL", "OpenAI-compatible server for GGUF/GPT4All models", false, ""},
	{"ANNA_ADDR", "Address for anna serve", false, ""},
	{"ANNA_SPEAKER", "Your name in conversations", false, ""},
	{"ANNA_BACKUP_KEEP", "Memory backups to keep", false, ""},
	{"LOG_LEVEL", "Log level (trace, debug, info, warn, error)", false, ""},
	{"LOG_FORMAT", "Log format (console, json)", false, ""},
}

var validProviders = map[string]bool{
	config.ProviderAnthropic: true,
	config.ProviderOpenAI:    true,
}

// ---------------------------------------------------------------------------
// Cobra commands
// ---------------------------------------------------------------------------

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Anna configuration",
	Long: `Manage Anna configuration (mentor keys, local model servers, etc.).

Configuration is stored in config.env inside the data directory and can be
overridden by environment variables.

  anna config setup              Interactive setup wizard
  anna config set KEY VALUE      Set a single config value
  anna config show               Show current configuration
  anna config path               Print config file path`,
}

var (
	setupNonInteractive bool
	setupProvider       string
	setupAPIKey         string
	setupSpeaker        string
)

var configSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long: `Guided setup that walks you through configuring Anna step by step.

Non-interactive mode for scripting:
  anna config setup --non-interactive --provider=anthropic --api-key=sk-ant-xxx`,
	RunE: runConfigSetup,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a config value",
	Long: `Set a single configuration value. Example:
  anna config set ANNA_SPEAKER Pierre`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display all configured values. Secrets are masked.",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), cfg.FilePath())
		return nil
	},
}

func init() {
	configSetupCmd.Flags().BoolVar(&setupNonInteractive, "non-interactive", false, "Run without prompts (requires --api-key)")
	configSetupCmd.Flags().StringVar(&setupProvider, "provider", config.ProviderAnthropic, "Mentor provider: anthropic, openai")
	configSetupCmd.Flags().StringVar(&setupAPIKey, "api-key", "", "Mentor API key (non-interactive mode)")
	configSetupCmd.Flags().StringVar(&setupSpeaker, "speaker", "", "Your name in conversations (non-interactive mode)")

	configCmd.AddCommand(configSetupCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// ---------------------------------------------------------------------------
// Config file helpers
// ---------------------------------------------------------------------------

// effectiveValue returns the current value for a key, preferring env vars over config file.
func effectiveValue(key string, fileValues map[string]string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fileValues[key]
}

// maskSecret masks a secret string, showing only the first 4 and last 4 characters.
func maskSecret(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// findKey looks up a configKey by name.
func findKey(name string) configKey {
	for _, ck := range allConfigKeys {
		if ck.Key == name {
			return ck
		}
	}
	return configKey{Key: name}
}

// keyForProvider names the API key variable of a mentor provider.
func keyForProvider(provider string) string {
	if provider == config.ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// ---------------------------------------------------------------------------
// Interactive helpers
// ---------------------------------------------------------------------------

// wizard holds shared state for the interactive prompts.
type wizard struct {
	reader     *bufio.Reader
	out        io.Writer
	fileValues map[string]string
	changed    int // number of values the user entered or changed
}

func newWizard(in io.Reader, out io.Writer, fileValues map[string]string) *wizard {
	return &wizard{
		reader:     bufio.NewReader(in),
		out:        out,
		fileValues: fileValues,
	}
}

// readLine returns the next trimmed line. A final line without newline is
// returned without error.
func (w *wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// askYesNo asks a yes/no question and returns true for yes.
// defaultYes controls what happens when the user presses Enter.
func (w *wizard) askYesNo(prompt string, defaultYes bool) (bool, error) {
	hint := "[Y/n]"
	if !defaultYes {
		hint = "[y/N]"
	}
	fmt.Fprintf(w.out, "  %s %s ", prompt, hint)
	input, err := w.readLine()
	if err != nil {
		return false, err
	}
	input = strings.ToLower(input)
	if input == "" {
		return defaultYes, nil
	}
	return input == "y" || input == "yes" || input == "o" || input == "oui", nil
}

// askValue prompts for a single config value with validation.
// Returns true if a new value was accepted.
func (w *wizard) askValue(ck configKey) (bool, error) {
	current := effectiveValue(ck.Key, w.fileValues)

	status := "\033[31m✗ not set\033[0m"
	if current != "" {
		if ck.Secret {
			status = fmt.Sprintf("\033[32m✓ set\033[0m (%s)", maskSecret(current))
		} else {
			status = fmt.Sprintf("\033[32m✓ set\033[0m (%s)", current)
		}
	}
	fmt.Fprintf(w.out, "  %s  %s\n", ck.Key, status)

	for {
		fmt.Fprint(w.out, "  Value (Enter to keep): ")
		input, err := w.readLine()
		if err != nil {
			return false, err
		}
		if input == "" {
			return false, nil
		}
		if ck.Prefix != "" && !strings.HasPrefix(input, ck.Prefix) {
			fmt.Fprintf(w.out, "  \033[33m!\033[0m  Expected prefix %q. Try again or press Enter to skip.\n", ck.Prefix)
			continue
		}

		w.fileValues[ck.Key] = input
		w.changed++
		fmt.Fprintf(w.out, "  \033[32m✓ saved\033[0m\n")
		return true, nil
	}
}

// ---------------------------------------------------------------------------
// Setup wizard
// ---------------------------------------------------------------------------

func runConfigSetup(cmd *cobra.Command, args []string) error {
	path := cfg.FilePath()
	fileValues, err := config.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	if setupNonInteractive {
		return runNonInteractiveSetup(cmd.OutOrStdout(), path, fileValues)
	}

	out := cmd.OutOrStdout()
	w := newWizard(cmd.InOrStdin(), out, fileValues)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  \033[1mAnna Setup\033[0m")
	fmt.Fprintln(out, "  ──────────")
	fmt.Fprintln(out, "  Press Enter at any prompt to keep the current value.")
	fmt.Fprintln(out)

	// Step 1: mentor.
	fmt.Fprintln(out, "  \033[1mStep 1 of 3: Mentor\033[0m")
	fmt.Fprintln(out, "  During bootstrap Anna learns from a hosted model (anthropic or openai).")
	provider := effectiveValue("ANNA_MENTOR_PROVIDER", w.fileValues)
	if provider == "" {
		provider = cfg.MentorProvider
	}
	fmt.Fprintf(out, "  Provider: %s\n", provider)
	for {
		fmt.Fprint(out, "  Provider (Enter to keep): ")
		input, err := w.readLine()
		if err != nil {
			return err
		}
		input = strings.ToLower(input)
		if input == "" {
			break
		}
		if !validProviders[input] {
			fmt.Fprintf(out, "  \033[33m!\033[0m  Unknown provider %q. Choose: anthropic, openai\n", input)
			continue
		}
		provider = input
		w.fileValues["ANNA_MENTOR_PROVIDER"] = input
		w.changed++
		break
	}
	if _, err := w.askValue(findKey(keyForProvider(provider))); err != nil {
		return err
	}
	if effectiveValue(keyForProvider(provider), w.fileValues) == "" {
		fmt.Fprintln(out, "  \033[33m!\033[0m  No mentor key: `anna bootstrap` will ask for one.")
	}
	fmt.Fprintln(out)

	// Step 2: speaker.
	fmt.Fprintln(out, "  \033[1mStep 2 of 3: Your name\033[0m")
	fmt.Fprintln(out, "  Anna remembers who said what in every conversation.")
	if _, err := w.askValue(findKey("ANNA_SPEAKER")); err != nil {
		return err
	}
	fmt.Fprintln(out)

	// Step 3: local runtime.
	fmt.Fprintln(out, "  \033[1mStep 3 of 3: Local model\033[0m")
	fmt.Fprintln(out, "  After bootstrap Anna runs on a local model served by Ollama.")
	ollamaURL := effectiveValue("ANNA_OLLAMA_URL", w.fileValues)
	if ollamaURL == "" {
		ollamaURL = cfg.OllamaURL
	}
	checkOllama(cmd.Context(), out, ollamaURL)
	fmt.Fprintln(out)

	if err := config.SaveFile(path, w.fileValues); err != nil {
		return err
	}

	fmt.Fprintf(out, "  Saved %d change(s) to %s\n\n", w.changed, path)
	fmt.Fprintln(out, "  \033[1mNext Steps\033[0m")
	fmt.Fprintln(out, "  ──────────")
	fmt.Fprintln(out, "  1. Teach Anna:        anna bootstrap")
	fmt.Fprintln(out, "  2. Pick a model:      anna model detect")
	fmt.Fprintln(out, "  3. Talk with her:     anna chat")
	fmt.Fprintln(out)
	return nil
}

// runNonInteractiveSetup handles --non-interactive mode.
func runNonInteractiveSetup(out io.Writer, path string, fileValues map[string]string) error {
	if setupAPIKey == "" {
		return fmt.Errorf("--api-key is required in non-interactive mode")
	}
	provider := strings.ToLower(setupProvider)
	if !validProviders[provider] {
		return fmt.Errorf("unknown provider %q; valid: anthropic, openai", setupProvider)
	}

	fileValues["ANNA_MENTOR_PROVIDER"] = provider
	fileValues[keyForProvider(provider)] = setupAPIKey
	if setupSpeaker != "" {
		fileValues["ANNA_SPEAKER"] = setupSpeaker
	}

	if err := config.SaveFile(path, fileValues); err != nil {
		return err
	}
	fmt.Fprintf(out, "Config written to %s\n", path)
	return nil
}

// checkOllama reports whether an Ollama server answers at url.
func checkOllama(ctx context.Context, out io.Writer, url string) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if ollama.New(url, "", ollama.Options{}).IsAvailable(ctx) {
		fmt.Fprintf(out, "  \033[32m✓\033[0m Ollama is running at %s\n", url)
		return
	}
	fmt.Fprintf(out, "  \033[33m!\033[0m  Ollama is not reachable at %s.\n", url)
	fmt.Fprintln(out, "     Install: https://ollama.com/download")
}

// ---------------------------------------------------------------------------
// config set / config show
// ---------------------------------------------------------------------------

// runConfigSet sets a single key=value in the config file.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	path := cfg.FilePath()

	fileValues, err := config.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	fileValues[key] = value
	if err := config.SaveFile(path, fileValues); err != nil {
		return err
	}

	if findKey(key).Secret {
		value = maskSecret(value)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

// runConfigShow displays the current effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := cfg.FilePath()
	fileValues, err := config.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	fmt.Fprintf(out, "Config file: %s\n\n", path)
	for _, ck := range allConfigKeys {
		value := effectiveValue(ck.Key, fileValues)
		source := ""
		if os.Getenv(ck.Key) != "" {
			source = " (from env)"
		} else if fileValues[ck.Key] != "" {
			source = " (from config file)"
		}

		display := "(not set)"
		if value != "" {
			if ck.Secret {
				display = maskSecret(value)
			} else {
				display = value
			}
		}
		fmt.Fprintf(out, "  %-24s %s%s\n", ck.Key, display, source)
	}
	return nil
}
