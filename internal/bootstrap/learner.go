package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jxucoder/anna/internal/logging"
	"github.com/jxucoder/anna/internal/memory"
	"github.com/jxucoder/anna/internal/store"
	"github.com/jxucoder/anna/llm"
)

var (
	// ErrAlreadyAutonomous is returned by Run once the mentor phase is over.
	ErrAlreadyAutonomous = errors.New("bootstrap already completed, Anna is autonomous")
	// ErrNoMentor is returned by Run when no mentor client is configured.
	ErrNoMentor = errors.New("no mentor configured")
)

const (
	// MinWordsPerLanguage is the vocabulary size each language must exceed
	// for the readiness check to pass.
	MinWordsPerLanguage = 1000

	knowledgeSource     = "mentor"
	knowledgeConfidence = 0.95
	summaryLength       = 200
)

// State is the persisted progress of the learner.
type State struct {
	Phase          Phase
	StartTime      *time.Time
	EndTime        *time.Time
	UseMentor      bool
	MentorSessions int
}

// ProgressEvent describes one step of a run. Done is false when a domain is
// about to be taught and true once it finished, with Err set on failure.
type ProgressEvent struct {
	Domain  Domain
	Index   int
	Total   int
	Done    bool
	AddedFR int
	AddedEN int
	Err     error
}

// Check is one readiness criterion.
type Check struct {
	Name   string
	Passed bool
}

// Readiness is the outcome of the checks run when the mentor phase ends.
type Readiness struct {
	Checks []Check
}

// Ready reports whether every check passed.
func (r *Readiness) Ready() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Options configures a Learner.
type Options struct {
	// Curriculum replaces DefaultCurriculum when non-empty.
	Curriculum []Domain
	// Pause is the delay between two domains.
	Pause time.Duration
	// Memory, when set, receives one learning memory per completed domain.
	Memory   *memory.Store
	Logger   zerolog.Logger
	Progress func(ProgressEvent)
}

// Learner teaches Anna the curriculum through a mentor model and records
// what it learns in the store.
type Learner struct {
	store    *store.Store
	memory   *memory.Store
	mentor   llm.Client
	domains  []Domain
	pause    time.Duration
	log      zerolog.Logger
	progress func(ProgressEvent)
}

// New creates a Learner. mentor may be nil when no hosted model is
// configured; Run then fails with ErrNoMentor.
func New(st *store.Store, mentor llm.Client, opts Options) *Learner {
	domains := opts.Curriculum
	if len(domains) == 0 {
		domains = DefaultCurriculum()
	}
	return &Learner{
		store:    st,
		memory:   opts.Memory,
		mentor:   mentor,
		domains:  domains,
		pause:    opts.Pause,
		log:      logging.Component(opts.Logger, "bootstrap"),
		progress: opts.Progress,
	}
}

// Domains returns the curriculum in teaching order.
func (l *Learner) Domains() []Domain {
	out := make([]Domain, len(l.domains))
	copy(out, l.domains)
	return out
}

// State returns the saved progress, or a fresh not_started state.
func (l *Learner) State(ctx context.Context) (*State, error) {
	saved, err := l.store.LoadBootstrap(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return &State{Phase: PhaseNotStarted, UseMentor: true}, nil
	}
	if err != nil {
		return nil, err
	}
	phase := Phase(saved.Phase)
	if !phase.Valid() {
		return nil, fmt.Errorf("unknown bootstrap phase %q", saved.Phase)
	}
	return &State{
		Phase:          phase,
		StartTime:      saved.StartTime,
		EndTime:        saved.EndTime,
		UseMentor:      saved.UseMentor,
		MentorSessions: saved.MentorSessions,
	}, nil
}

func (l *Learner) save(ctx context.Context, st *State) error {
	return l.store.SaveBootstrap(ctx, &store.BootstrapState{
		Phase:          string(st.Phase),
		StartTime:      st.StartTime,
		EndTime:        st.EndTime,
		UseMentor:      st.UseMentor,
		MentorSessions: st.MentorSessions,
	})
}

// IsAutonomous reports whether the learner handed over to the local model.
func (l *Learner) IsAutonomous(ctx context.Context) (bool, error) {
	st, err := l.State(ctx)
	if err != nil {
		return false, err
	}
	return st.Phase == PhaseAutonomous, nil
}

// NeedsMentor reports whether replies should still come from the mentor.
func (l *Learner) NeedsMentor(ctx context.Context) (bool, error) {
	st, err := l.State(ctx)
	if err != nil {
		return false, err
	}
	return st.UseMentor && st.Phase != PhaseAutonomous, nil
}

// Run teaches every domain not yet completed, then runs the readiness
// checks and switches to the autonomous phase whatever their outcome.
//
// A domain whose mentor call fails is logged and left incomplete. When ctx
// is cancelled Run returns ctx.Err() with the phase still in_progress, and
// the next Run resumes at the first incomplete domain. A state left in the
// completed phase only needs the handover and does not call the mentor.
func (l *Learner) Run(ctx context.Context) (*Readiness, error) {
	st, err := l.State(ctx)
	if err != nil {
		return nil, err
	}
	switch st.Phase {
	case PhaseAutonomous:
		return nil, ErrAlreadyAutonomous
	case PhaseCompleted:
		return l.complete(ctx, st)
	}
	if l.mentor == nil {
		return nil, ErrNoMentor
	}

	if st.StartTime == nil {
		now := time.Now().UTC()
		st.StartTime = &now
	}
	st.Phase = PhaseInProgress
	st.UseMentor = true
	if err := l.save(ctx, st); err != nil {
		return nil, err
	}

	completed, err := l.completedSet(ctx)
	if err != nil {
		return nil, err
	}

	l.log.Info().Int("domains", len(l.domains)).Int("already_completed", len(completed)).Msg("bootstrap started")

	for i, d := range l.domains {
		if completed[d.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		event := ProgressEvent{Domain: d, Index: i + 1, Total: len(l.domains)}
		l.report(event)

		fr, en, err := l.learnDomain(ctx, st, d)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		event.Done = true
		event.AddedFR, event.AddedEN, event.Err = fr, en, err
		if err != nil {
			l.log.Warn().Err(err).Str("domain", d.ID).Msg("domain failed, continuing")
		} else {
			l.log.Info().Str("domain", d.ID).Int("fr", fr).Int("en", en).Msg("domain completed")
		}
		l.report(event)

		if i < len(l.domains)-1 && l.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.pause):
			}
		}
	}

	return l.complete(ctx, st)
}

func (l *Learner) learnDomain(ctx context.Context, st *State, d Domain) (addedFR, addedEN int, err error) {
	st.MentorSessions++
	if err := l.save(ctx, st); err != nil {
		return 0, 0, err
	}

	reply, err := l.mentor.Complete(ctx, "", d.Prompt)
	if errors.Is(err, llm.ErrEmptyResponse) {
		l.log.Warn().Str("domain", d.ID).Msg("mentor reply is empty, no vocabulary learned")
		reply, err = "", nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("asking mentor: %w", err)
	}

	words := ExtractVocabulary(reply, d.Language)
	var fr, en []string
	switch d.Language {
	case "fr":
		fr = words
	case "en":
		en = words
	default:
		fr, en = SplitByLanguage(words)
	}

	if addedFR, err = l.store.AddWords(ctx, "fr", d.ID, fr); err != nil {
		return 0, 0, err
	}
	if addedEN, err = l.store.AddWords(ctx, "en", d.ID, en); err != nil {
		return 0, 0, err
	}

	summary := truncate(reply, summaryLength)
	err = l.store.AddKnowledge(ctx, &store.Knowledge{
		Domain:     d.ID,
		Source:     knowledgeSource,
		Confidence: knowledgeConfidence,
		Summary:    summary,
	})
	if err != nil {
		return 0, 0, err
	}
	if l.memory != nil {
		concept := d.Name
		if concept == "" {
			concept = d.ID
		}
		if _, err := l.memory.Learn(ctx, concept, summary, knowledgeSource, memory.High); err != nil {
			return 0, 0, err
		}
	}
	if err := l.store.MarkDomainCompleted(ctx, d.ID); err != nil {
		return 0, 0, err
	}
	return addedFR, addedEN, nil
}

// complete runs the readiness checks, then moves to the autonomous phase
// in a single save.
func (l *Learner) complete(ctx context.Context, st *State) (*Readiness, error) {
	readiness, err := l.checkReadiness(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if st.EndTime == nil {
		st.EndTime = &now
	}
	st.Phase = PhaseAutonomous
	st.UseMentor = false
	if err := l.save(ctx, st); err != nil {
		return nil, err
	}

	ev := l.log.Info().Bool("ready", readiness.Ready()).Int("mentor_sessions", st.MentorSessions)
	if st.StartTime != nil {
		ev = ev.Dur("duration", st.EndTime.Sub(*st.StartTime))
	}
	ev.Msg("bootstrap completed, mentor disabled")
	return readiness, nil
}

func (l *Learner) checkReadiness(ctx context.Context) (*Readiness, error) {
	fr, err := l.store.VocabularyCount(ctx, "fr")
	if err != nil {
		return nil, err
	}
	en, err := l.store.VocabularyCount(ctx, "en")
	if err != nil {
		return nil, err
	}
	completed, err := l.completedSet(ctx)
	if err != nil {
		return nil, err
	}
	knowledge, err := l.store.KnowledgeCount(ctx)
	if err != nil {
		return nil, err
	}

	allDone := true
	for _, d := range l.domains {
		if !completed[d.ID] {
			allDone = false
			break
		}
	}

	return &Readiness{Checks: []Check{
		{Name: "French vocabulary", Passed: fr > MinWordsPerLanguage},
		{Name: "English vocabulary", Passed: en > MinWordsPerLanguage},
		{Name: "All domains learned", Passed: allDone},
		{Name: "Knowledge acquired", Passed: knowledge > 0},
	}}, nil
}

// Stats returns the learner figures as a flat map.
func (l *Learner) Stats(ctx context.Context) (map[string]any, error) {
	st, err := l.State(ctx)
	if err != nil {
		return nil, err
	}
	fr, err := l.store.VocabularyCount(ctx, "fr")
	if err != nil {
		return nil, err
	}
	en, err := l.store.VocabularyCount(ctx, "en")
	if err != nil {
		return nil, err
	}
	knowledge, err := l.store.KnowledgeCount(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := l.store.CompletedDomains(ctx)
	if err != nil {
		return nil, err
	}

	stats := map[string]any{
		"phase":               string(st.Phase),
		"is_autonomous":       st.Phase == PhaseAutonomous,
		"vocabulary_fr_count": fr,
		"vocabulary_en_count": en,
		"knowledge_entries":   knowledge,
		"domains_completed":   len(completed),
		"domains_total":       len(l.domains),
		"mentor_sessions":     st.MentorSessions,
		"start_time":          nil,
		"duration":            nil,
	}
	if st.StartTime != nil {
		stats["start_time"] = st.StartTime.Format(time.RFC3339)
		end := time.Now().UTC()
		if st.EndTime != nil {
			end = *st.EndTime
		}
		stats["duration"] = end.Sub(*st.StartTime).Round(time.Second).String()
	}
	return stats, nil
}

func (l *Learner) completedSet(ctx context.Context) (map[string]bool, error) {
	ids, err := l.store.CompletedDomains(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (l *Learner) report(ev ProgressEvent) {
	if l.progress != nil {
		l.progress(ev)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
