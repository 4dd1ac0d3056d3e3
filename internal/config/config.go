// Package config provides configuration management for Anna.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// FileName is the name of the key=value file inside the data directory.
const FileName = "config.env"

// Mentor providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds all configuration for Anna.
type Config struct {
	// DataDir is the directory for persistent data (SQLite DB, backups, config.env).
	DataDir string `validate:"required"`

	// DatabasePath is the full path to the SQLite database file.
	DatabasePath string `validate:"required"`

	// Hosted mentor used during the bootstrap phase.
	AnthropicAPIKey string
	OpenAIAPIKey    string
	MentorProvider  string `validate:"oneof=anthropic openai"`
	MentorModel     string
	MentorRetries   int `validate:"min=1,max=10"`

	// DomainPause is the delay between two learning domains.
	DomainPause time.Duration

	// CurriculumPath optionally replaces the built-in learning domains.
	CurriculumPath string `validate:"omitempty,file"`

	// OllamaURL is the Ollama server used for ollama_* model types.
	OllamaURL string `validate:"required,url"`

	// LocalServerURL is an OpenAI-compatible server (llama-server, GPT4All)
	// that runs file-based models.
	LocalServerURL string `validate:"required,url"`

	// ServerAddr is the address `anna serve` listens on.
	ServerAddr string `validate:"required,hostname_port"`

	// Speaker is the name recorded for the human side of a chat.
	Speaker string `validate:"required"`

	// BackupKeep is how many memory backups are kept.
	BackupKeep int `validate:"min=1"`

	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
}

// Load creates a Config from the config file and environment variables.
// Values are resolved in order: environment variable > config file > default.
func Load() (*Config, error) {
	dataDir := os.Getenv("ANNA_DATA_DIR")
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	fileValues, err := ReadFile(filepath.Join(dataDir, FileName))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}
	get := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileValues[key]
	}
	or := func(key, fallback string) string {
		if v := get(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		DataDir:         dataDir,
		DatabasePath:    filepath.Join(dataDir, "anna.db"),
		AnthropicAPIKey: get("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    get("OPENAI_API_KEY"),
		MentorProvider:  strings.ToLower(get("ANNA_MENTOR_PROVIDER")),
		MentorModel:     get("ANNA_MENTOR_MODEL"),
		MentorRetries:   intOr(get("ANNA_MENTOR_RETRIES"), 3),
		DomainPause:     durationOr(get("ANNA_DOMAIN_PAUSE"), 2*time.Second),
		CurriculumPath:  get("ANNA_CURRICULUM"),
		OllamaURL:       or("ANNA_OLLAMA_URL", "http://localhost:11434"),
		LocalServerURL:  or("ANNA_LOCAL_SERVER_URL", "http://localhost:8080"),
		ServerAddr:      or("ANNA_ADDR", "127.0.0.1:7090"),
		Speaker:         or("ANNA_SPEAKER", "user"),
		BackupKeep:      intOr(get("ANNA_BACKUP_KEEP"), 10),
		LogLevel:        strings.ToLower(or("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(or("LOG_FORMAT", "console")),
	}
	if cfg.MentorProvider == "" {
		cfg.MentorProvider = ProviderAnthropic
		if cfg.AnthropicAPIKey == "" && cfg.OpenAIAPIKey != "" {
			cfg.MentorProvider = ProviderOpenAI
		}
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field formats and ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.DomainPause < 0 {
		return fmt.Errorf("invalid configuration: ANNA_DOMAIN_PAUSE must not be negative")
	}
	return nil
}

// MentorAPIKey returns the key of the selected mentor provider.
func (c *Config) MentorAPIKey() string {
	if c.MentorProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// MentorEnabled returns true if the selected provider has a key.
func (c *Config) MentorEnabled() bool {
	return c.MentorAPIKey() != ""
}

// FilePath returns the config.env path for the data directory.
func (c *Config) FilePath() string {
	return filepath.Join(c.DataDir, FileName)
}

// ReadFile reads key=value pairs. A missing file yields an empty map.
func ReadFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return values, nil
}

// SaveFile writes key=value pairs, dropping empty values. The file is
// created with 0600 permissions since it usually holds API keys.
func SaveFile(path string, values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	kept := make(map[string]string, len(values))
	for k, v := range values {
		if v != "" {
			kept[k] = v
		}
	}
	body, err := godotenv.Marshal(kept)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	header := "# Anna configuration\n# Managed by: anna config\n# Environment variables override these values.\n\n"
	if err := os.WriteFile(path, []byte(header+body+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// DefaultDataDir returns ~/.anna, or .anna when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".anna"
	}
	return filepath.Join(home, ".anna")
}

func durationOr(v string, fallback time.Duration) time.Duration {
	if v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func intOr(v string, fallback int) int {
	if v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
