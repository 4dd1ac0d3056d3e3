// Package memory provides Anna's long-term conversation memory.
// It records chat turns and learnings in the store, retrieves them for
// prompt context and periodically consolidates them into summaries.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jxucoder/anna/internal/logging"
	"github.com/jxucoder/anna/internal/store"
)

// Kind classifies a memory.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindLearning     Kind = "learning"
	KindPreference   Kind = "preference"
	KindEvent        Kind = "event"
	KindConcept      Kind = "concept"
	KindRelationship Kind = "relationship"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(s))
	switch k {
	case KindConversation, KindLearning, KindPreference, KindEvent, KindConcept, KindRelationship:
		return k, nil
	}
	return "", fmt.Errorf("unknown memory kind %q", s)
}

// Importance ranks memories from 1 (trivial) to 5 (critical).
type Importance int

const (
	Trivial Importance = iota + 1
	Low
	Medium
	High
	Critical
)

func (i Importance) clamp() Importance {
	switch {
	case i < Trivial:
		return Medium
	case i > Critical:
		return Critical
	}
	return i
}

// AnnaSpeaker is recorded as the speaker of Anna's own replies.
const AnnaSpeaker = "Anna"

// learningTag marks every learning memory.
const learningTag = "apprentissage"

const (
	maxTags           = 5
	maxKeyEvents      = 10
	consolidateWindow = 1000
	contextLength     = 200
)

// ErrNothingToConsolidate is returned when a period holds no memories.
var ErrNothingToConsolidate = errors.New("no memories in period")

// Entry is one memory.
type Entry struct {
	ID             int64
	ConversationID string
	Kind           Kind
	Content        string
	Speaker        string
	Importance     Importance
	Tags           []string
	CreatedAt      time.Time
}

// Filter narrows Search. Zero values match everything.
type Filter struct {
	Query          string
	Kind           Kind
	Speaker        string
	ConversationID string
	Since          time.Time
	Until          time.Time
	MinImportance  Importance
	Tags           []string
	Limit          int
}

// Consolidation summarises a period of memories.
type Consolidation struct {
	ID            int64
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Summary       string
	KeyEvents     []string
	Total         int
	Conversations int
	Learnings     int
	Important     int
}

// Options configures a Store.
type Options struct {
	// BackupDir receives database copies made by Backup.
	BackupDir  string
	BackupKeep int
	Logger     zerolog.Logger
}

// Store is the memory layer over the SQLite store.
type Store struct {
	db   *store.Store
	opts Options
	log  zerolog.Logger
}

// New creates a memory Store.
func New(db *store.Store, opts Options) *Store {
	if opts.BackupKeep <= 0 {
		opts.BackupKeep = 10
	}
	return &Store{db: db, opts: opts, log: logging.Component(opts.Logger, "memory")}
}

// Remember stores e, filling its timestamp and tags and clamping its
// importance. Conversation is the default kind.
func (s *Store) Remember(ctx context.Context, e Entry) (*Entry, error) {
	if strings.TrimSpace(e.Content) == "" {
		return nil, fmt.Errorf("memory content is empty")
	}
	if e.Kind == "" {
		e.Kind = KindConversation
	}
	e.Importance = e.Importance.clamp()
	if len(e.Tags) == 0 {
		e.Tags = ExtractTags(e.Content)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	m := toRecord(e)
	if err := s.db.AddMemory(ctx, m); err != nil {
		return nil, err
	}
	e.ID = m.ID
	return &e, nil
}

// RememberExchange stores a user message and Anna's reply as two
// conversation memories sharing one timestamp.
func (s *Store) RememberExchange(ctx context.Context, conversationID, speaker, message, reply string) error {
	now := time.Now().UTC()
	for _, e := range []Entry{
		{ConversationID: conversationID, Speaker: speaker, Content: message},
		{ConversationID: conversationID, Speaker: AnnaSpeaker, Content: reply},
	} {
		e.Kind = KindConversation
		e.Importance = Medium
		e.CreatedAt = now
		if _, err := s.Remember(ctx, e); err != nil {
			return fmt.Errorf("remembering exchange: %w", err)
		}
	}
	return nil
}

// Learn records a concept. The first time a concept is learned a learning
// memory tagged with the concept is stored as well; later calls only
// refresh the definition and count the reuse. It returns the concept ID.
func (s *Store) Learn(ctx context.Context, concept, definition, source string, importance Importance) (int64, error) {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return 0, fmt.Errorf("concept name is empty")
	}
	id, created, err := s.db.UpsertConcept(ctx, concept, definition, source)
	if err != nil {
		return 0, err
	}
	if !created {
		return id, nil
	}

	content := "Appris: " + concept
	if definition = strings.TrimSpace(definition); definition != "" {
		content += " - " + definition
	}
	_, err = s.Remember(ctx, Entry{
		Kind:       KindLearning,
		Content:    content,
		Importance: importance,
		Tags:       []string{concept, learningTag},
	})
	if err != nil {
		return 0, fmt.Errorf("remembering learning: %w", err)
	}
	s.log.Debug().Str("concept", concept).Str("source", source).Msg("concept learned")
	return id, nil
}

// Search returns matching memories, newest first. Limit defaults to 50.
func (s *Store) Search(ctx context.Context, f Filter) ([]Entry, error) {
	ms, err := s.db.SearchMemories(ctx, store.MemoryFilter{
		Query:          f.Query,
		Kind:           string(f.Kind),
		Speaker:        f.Speaker,
		ConversationID: f.ConversationID,
		Since:          f.Since,
		Until:          f.Until,
		MinImportance:  int(f.MinImportance),
		Tags:           f.Tags,
		Limit:          f.Limit,
	})
	if err != nil {
		return nil, err
	}
	return fromRecords(ms), nil
}

// Recent returns the last n memories of a conversation, oldest first.
func (s *Store) Recent(ctx context.Context, conversationID string, n int) ([]Entry, error) {
	ms, err := s.db.RecentMemories(ctx, conversationID, n)
	if err != nil {
		return nil, err
	}
	return fromRecords(ms), nil
}

// Consolidate summarises the memories created between from and to and
// stores the summary with up to ten key events.
func (s *Store) Consolidate(ctx context.Context, from, to time.Time) (*Consolidation, error) {
	entries, err := s.Search(ctx, Filter{Since: from, Until: to, Limit: consolidateWindow})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNothingToConsolidate
	}

	c := &Consolidation{PeriodStart: from.UTC(), PeriodEnd: to.UTC(), Total: len(entries)}
	for _, e := range entries {
		switch e.Kind {
		case KindConversation:
			c.Conversations++
		case KindLearning:
			c.Learnings++
		}
		if e.Importance >= High {
			c.Important++
			if len(c.KeyEvents) < maxKeyEvents {
				c.KeyEvents = append(c.KeyEvents, e.Content)
			}
		}
	}
	c.Summary = fmt.Sprintf("Period: %s to %s\n- %d conversations\n- %d learnings\n- %d important memories",
		c.PeriodStart.Format(time.DateOnly), c.PeriodEnd.Format(time.DateOnly),
		c.Conversations, c.Learnings, c.Important)

	rec := &store.Consolidation{
		PeriodStart: c.PeriodStart,
		PeriodEnd:   c.PeriodEnd,
		Summary:     c.Summary,
		KeyEvents:   c.KeyEvents,
	}
	if err := s.db.AddConsolidation(ctx, rec); err != nil {
		return nil, err
	}
	c.ID = rec.ID

	s.log.Info().Int("memories", c.Total).Int("key_events", len(c.KeyEvents)).Msg("memories consolidated")
	return c, nil
}

// Backup copies the database into the backup directory, keeping the newest
// copies only.
func (s *Store) Backup(ctx context.Context) (string, error) {
	if s.opts.BackupDir == "" {
		return "", fmt.Errorf("no backup directory configured")
	}
	path, err := s.db.Backup(ctx, s.opts.BackupDir, s.opts.BackupKeep)
	if err != nil {
		return "", err
	}
	s.log.Info().Str("path", path).Msg("memory backup written")
	return path, nil
}

// Stats returns memory figures as a flat map.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	counts, err := s.db.CountMemories(ctx)
	if err != nil {
		return nil, err
	}
	concepts, err := s.db.ConceptCount(ctx)
	if err != nil {
		return nil, err
	}
	var last any
	if counts.LastConsolidation != nil {
		last = counts.LastConsolidation.Format(time.RFC3339)
	}
	sizeMB := float64(s.db.SizeBytes()) / (1024 * 1024)
	return map[string]any{
		"total_memories":     counts.Total,
		"conversations":      counts.ByKind[string(KindConversation)],
		"learnings":          counts.ByKind[string(KindLearning)],
		"concepts_learned":   concepts,
		"consolidations":     counts.Consolidations,
		"last_consolidation": last,
		"database_size_mb":   float64(int(sizeMB*100)) / 100,
	}, nil
}

// FormatContext renders memories as a prompt section, one line per turn.
func FormatContext(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Recent conversation\n\n")
	for _, e := range entries {
		who := e.Speaker
		if who == "" {
			who = string(e.Kind)
		}
		fmt.Fprintf(&b, "- %s: %s\n", who, truncate(e.Content, contextLength))
	}
	return b.String()
}

var tagWords = map[string]bool{
	"amour": true, "famille": true, "travail": true, "projet": true, "urgent": true, "important": true,
	"love": true, "family": true, "work": true, "project": true,
	"problème": true, "solution": true, "idée": true, "question": true, "réponse": true,
	"problem": true, "idea": true, "answer": true,
}

// ExtractTags returns up to five keywords of text, in order of appearance.
func ExtractTags(text string) []string {
	var tags []string
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:")
		if !tagWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func toRecord(e Entry) *store.Memory {
	return &store.Memory{
		ConversationID: e.ConversationID,
		Kind:           string(e.Kind),
		Content:        e.Content,
		Speaker:        e.Speaker,
		Importance:     int(e.Importance),
		Tags:           e.Tags,
		CreatedAt:      e.CreatedAt,
	}
}

func fromRecords(ms []*store.Memory) []Entry {
	out := make([]Entry, 0, len(ms))
	for _, m := range ms {
		out = append(out, Entry{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Kind:           Kind(m.Kind),
			Content:        m.Content,
			Speaker:        m.Speaker,
			Importance:     Importance(m.Importance),
			Tags:           m.Tags,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
