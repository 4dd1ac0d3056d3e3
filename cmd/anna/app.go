package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jxucoder/anna/internal/bootstrap"
	"github.com/jxucoder/anna/internal/companion"
	"github.com/jxucoder/anna/internal/config"
	"github.com/jxucoder/anna/internal/localmodel"
	"github.com/jxucoder/anna/internal/memory"
	"github.com/jxucoder/anna/internal/metrics"
	"github.com/jxucoder/anna/internal/store"
	"github.com/jxucoder/anna/llm"
	"github.com/jxucoder/anna/llm/anthropic"
	"github.com/jxucoder/anna/llm/openai"
)

// app holds the components shared by the commands.
type app struct {
	store      *store.Store
	curriculum []bootstrap.Domain
	learner    *bootstrap.Learner
	local      *localmodel.Selector
	memory     *memory.Store
	mentor     llm.Client
	companion  *companion.Companion
	metrics    *metrics.Metrics
}

// openApp validates the configuration and wires every component.
func openApp() (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	curriculum := bootstrap.DefaultCurriculum()
	if cfg.CurriculumPath != "" {
		domains, err := bootstrap.LoadCurriculum(cfg.CurriculumPath)
		if err != nil {
			return nil, fmt.Errorf("loading curriculum %s: %w", cfg.CurriculumPath, err)
		}
		curriculum = domains
	}

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:      st,
		curriculum: curriculum,
		mentor:     newMentor(cfg),
		local: localmodel.New(st, localmodel.Options{
			OllamaURL:      cfg.OllamaURL,
			LocalServerURL: cfg.LocalServerURL,
			Logger:         logger,
		}),
		memory: memory.New(st, memory.Options{
			BackupDir:  filepath.Join(cfg.DataDir, "backups"),
			BackupKeep: cfg.BackupKeep,
			Logger:     logger,
		}),
	}
	a.learner = a.newLearner(a.mentor, nil)
	a.companion = companion.New(a.learner, a.local, a.memory, a.mentor, companion.Options{Logger: logger})
	a.metrics = metrics.New(a.companion.Stats, logger)
	a.companion.SetMetrics(a.metrics)
	return a, nil
}

// newLearner builds a learner on the app's store and curriculum.
func (a *app) newLearner(mentor llm.Client, progress func(bootstrap.ProgressEvent)) *bootstrap.Learner {
	return bootstrap.New(a.store, mentor, bootstrap.Options{
		Curriculum: a.curriculum,
		Pause:      cfg.DomainPause,
		Memory:     a.memory,
		Logger:     logger,
		Progress:   progress,
	})
}

func (a *app) Close() error {
	return a.store.Close()
}

// newMentor returns the hosted mentor for the configured provider, or nil
// when it has no API key.
func newMentor(c *config.Config) llm.Client {
	if !c.MentorEnabled() {
		return nil
	}
	var client llm.Client
	switch c.MentorProvider {
	case config.ProviderOpenAI:
		client = openai.New(c.OpenAIAPIKey, c.MentorModel)
	default:
		client = anthropic.New(c.AnthropicAPIKey, c.MentorModel)
	}

	retry := llm.WithRetry(client, uint(c.MentorRetries))
	retry.OnRetry = func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("wait", wait).Str("provider", c.MentorProvider).Msg("mentor call failed, retrying")
	}
	return retry
}
