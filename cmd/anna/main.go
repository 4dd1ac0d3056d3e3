// Anna
//
// A personal bilingual companion. Anna first learns French and English
// from a hosted mentor model, then keeps talking with you on a local model.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jxucoder/anna/internal/config"
	"github.com/jxucoder/anna/internal/logging"
)

var (
	version = "dev"
	dataDir string

	// Set by PersistentPreRunE for every command.
	cfg    *config.Config
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "anna",
	Short: "Anna - personal bilingual companion",
	Long: `Anna learns French and English from a mentor model, then lives on a
local model and remembers what you tell her.

  anna config setup          Set up the mentor API key (first time)
  anna bootstrap             Teach Anna the curriculum
  anna model detect          Pick an installed Ollama model
  anna chat                  Talk with Anna
  anna stats                 Show what Anna knows
  anna serve                 Start the HTTP API`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if dataDir != "" {
			os.Setenv("ANNA_DATA_DIR", dataDir)
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		logger = logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.anna, or $ANNA_DATA_DIR)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
