package localmodel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jxucoder/anna/internal/logging"
	"github.com/jxucoder/anna/internal/store"
	"github.com/jxucoder/anna/llm"
	"github.com/jxucoder/anna/llm/ollama"
	"github.com/jxucoder/anna/llm/openai"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 500
	defaultTopP        = 0.9

	probeTimeout = 5 * time.Second

	// DefaultServerURL is the OpenAI-compatible server used for model files.
	DefaultServerURL = "http://localhost:8080"
)

// Options configures a Selector.
type Options struct {
	OllamaURL      string
	LocalServerURL string
	Logger         zerolog.Logger
}

// Selector persists the local model choice and routes generation to the
// runtime serving it.
type Selector struct {
	store  *store.Store
	ollama *ollama.Client
	opts   Options
	log    zerolog.Logger

	mu sync.Mutex
}

// New creates a Selector. The saved selection is read from the store on
// every call, so a choice made by another process is picked up at once.
func New(st *store.Store, opts Options) *Selector {
	if opts.OllamaURL == "" {
		opts.OllamaURL = ollama.DefaultURL
	}
	if opts.LocalServerURL == "" {
		opts.LocalServerURL = DefaultServerURL
	}
	return &Selector{
		store:  st,
		ollama: ollama.New(opts.OllamaURL, "", ollama.Options{}),
		opts:   opts,
		log:    logging.Component(opts.Logger, "localmodel"),
	}
}

// load reads the saved selection, or the defaults when none was saved.
func (s *Selector) load(ctx context.Context) (*store.LocalModel, error) {
	cfg, err := s.store.LoadLocalModel(ctx)
	if errors.Is(err, store.ErrNotFound) {
		cfg = &store.LocalModel{
			Type:        string(TypeNone),
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
			TopP:        defaultTopP,
		}
	} else if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Current returns the selection.
func (s *Selector) Current(ctx context.Context) (store.LocalModel, error) {
	cfg, err := s.load(ctx)
	if err != nil {
		return store.LocalModel{}, err
	}
	return *cfg, nil
}

// Type returns the selected model type.
func (s *Selector) Type(ctx context.Context) (ModelType, error) {
	cfg, err := s.Current(ctx)
	if err != nil {
		return TypeNone, err
	}
	return ModelType(cfg.Type), nil
}

// update re-reads the saved row, applies mutate and writes it back.
func (s *Selector) update(ctx context.Context, mutate func(cfg *store.LocalModel)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}
	mutate(cfg)
	return s.store.SaveLocalModel(ctx, cfg)
}

// SetPath selects a model file. Only file based types are accepted and the
// path must name an existing regular file. The absolute path is stored.
func (s *Selector) SetPath(ctx context.Context, path string, t ModelType) error {
	if !t.IsFile() {
		return fmt.Errorf("%w: %s", ErrNotFileModel, t)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrModelFileMissing, abs)
	}

	err = s.update(ctx, func(cfg *store.LocalModel) {
		cfg.Type = string(t)
		cfg.Path = abs
		cfg.Name = filepath.Base(abs)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("type", string(t)).Str("path", abs).Msg("local model file selected")
	return nil
}

// SetOllama selects an Ollama model by name, inferring its family.
func (s *Selector) SetOllama(ctx context.Context, name string) error {
	t, err := ollamaTypeFor(name)
	if err != nil {
		return err
	}
	err = s.update(ctx, func(cfg *store.LocalModel) {
		cfg.Type = string(t)
		cfg.Name = name
		cfg.Path = ""
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("type", string(t)).Str("model", name).Msg("ollama model selected")
	return nil
}

// Detect picks an installed Ollama model when none is configured, preferring
// mistral, then llama, then gemma. It returns the selected name, or "" when
// nothing suitable is installed. An existing selection is left alone.
func (s *Selector) Detect(ctx context.Context) (string, error) {
	cfg, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	if ModelType(cfg.Type) != TypeNone {
		return cfg.Name, nil
	}

	installed, err := s.ollama.Models(ctx)
	if err != nil {
		return "", fmt.Errorf("listing ollama models: %w", err)
	}
	for _, family := range []string{"mistral", "llama", "gemma"} {
		for _, name := range installed {
			if strings.Contains(strings.ToLower(name), family) {
				if err := s.SetOllama(ctx, name); err != nil {
					return "", err
				}
				return name, nil
			}
		}
	}
	return "", nil
}

// Pull asks Ollama to download name, then selects it.
func (s *Selector) Pull(ctx context.Context, name string) error {
	if _, err := ollamaTypeFor(name); err != nil {
		return err
	}
	s.log.Info().Str("model", name).Msg("pulling ollama model")
	if err := s.ollama.Pull(ctx, name); err != nil {
		return err
	}
	return s.SetOllama(ctx, name)
}

// Available reports whether the selected model can answer right now.
func (s *Selector) Available(ctx context.Context) bool {
	cfg, err := s.Current(ctx)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	t := ModelType(cfg.Type)
	switch {
	case t.IsOllama():
		ok, err := s.ollama.HasModel(ctx, cfg.Name)
		return err == nil && ok
	case t.IsFile():
		info, err := os.Stat(cfg.Path)
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
		return s.fileClient(cfg).Ping(ctx) == nil
	}
	return false
}

func (s *Selector) fileClient(cfg store.LocalModel) *openai.Client {
	return openai.New("", cfg.Name,
		openai.WithBaseURL(s.opts.LocalServerURL),
		openai.WithMaxTokens(cfg.MaxTokens),
		openai.WithSampling(cfg.Temperature, cfg.TopP),
	)
}

func (s *Selector) client(cfg store.LocalModel) (llm.Client, error) {
	t := ModelType(cfg.Type)
	switch {
	case t.IsOllama():
		return ollama.New(s.opts.OllamaURL, cfg.Name, ollama.Options{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		}), nil
	case t.IsFile():
		return s.fileClient(cfg), nil
	}
	return nil, ErrNotConfigured
}

// Generate answers prompt with the selected model and records usage.
func (s *Selector) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	c, err := s.client(cfg)
	if err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := c.Complete(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	elapsed := time.Since(start)
	reply = strings.TrimSpace(reply)

	tokens := int64(len(strings.Fields(reply)))
	ms := float64(elapsed) / float64(time.Millisecond)
	if err := s.store.RecordLocalModelUsage(ctx, tokens, ms); err != nil {
		s.log.Warn().Err(err).Msg("saving usage stats")
	}
	return reply, nil
}

// Capabilities describes what the selected model offers.
func (s *Selector) Capabilities(ctx context.Context) map[string]any {
	cfg, err := s.Current(ctx)
	if err != nil || !s.Available(ctx) {
		return map[string]any{
			"available":              false,
			"can_understand_french":  false,
			"can_understand_english": false,
			"autonomous":             false,
		}
	}
	return map[string]any{
		"available":              true,
		"model_type":             cfg.Type,
		"model_name":             cfg.Name,
		"can_understand_french":  true,
		"can_understand_english": true,
		"autonomous":             true,
		"offline_capable":        true,
		"no_external_dependency": true,
	}
}

// Stats returns the selection and usage figures as a flat map.
func (s *Selector) Stats(ctx context.Context) (map[string]any, error) {
	cfg, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	var lastUsed any
	if cfg.LastUsed != nil {
		lastUsed = cfg.LastUsed.Format(time.RFC3339)
	}
	return map[string]any{
		"model_type":        cfg.Type,
		"model_name":        cfg.Name,
		"model_path":        cfg.Path,
		"available":         s.Available(ctx),
		"queries_processed": cfg.Queries,
		"tokens_generated":  cfg.Tokens,
		"avg_response_time": cfg.AvgResponseMS / 1000,
		"last_used":         lastUsed,
	}, nil
}
