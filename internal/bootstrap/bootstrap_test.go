package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jxucoder/anna/internal/memory"
	"github.com/jxucoder/anna/internal/store"
	"github.com/jxucoder/anna/llm"
	"github.com/jxucoder/anna/llm/anthropic"
)

// fakeMentor answers prompts through a function and counts calls.
type fakeMentor struct {
	mu      sync.Mutex
	calls   []string
	respond func(n int, prompt string) (string, error)
}

func (f *fakeMentor) Complete(_ context.Context, _, user string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, user)
	n := len(f.calls)
	f.mu.Unlock()
	return f.respond(n, user)
}

func (f *fakeMentor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const bilingualReply = `maison (nom)
aimer (verbe)
heureux (adjectif)
home (noun) - the place where one lives
réconforter - to comfort
été - summer`

func constantMentor(reply string) *fakeMentor {
	return &fakeMentor{respond: func(int, string) (string, error) { return reply, nil }}
}

// ---------------------------------------------------------------------------
// Vocabulary extraction
// ---------------------------------------------------------------------------

func TestExtractVocabulary(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		language string
		want     []string
	}{
		{
			name:     "french keeps accents",
			text:     "Le café et la crème, été !",
			language: "fr",
			want:     []string{"café", "crème", "été"},
		},
		{
			name:     "english drops accented words whole",
			text:     "The café is a nice place to rest",
			language: "en",
			want:     []string{"nice", "place", "rest"},
		},
		{
			name:     "short words and stopwords dropped",
			text:     "an ox is to the and of des les une",
			language: "both",
			want:     []string{},
		},
		{
			name:     "lowercased and deduplicated",
			text:     "Home HOME home homely",
			language: "en",
			want:     []string{"home", "homely"},
		},
		{
			name:     "tokens with digits ignored",
			text:     "abc123 word2vec plain",
			language: "en",
			want:     []string{"plain"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVocabulary(tt.text, tt.language)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractVocabulary = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFrench(t *testing.T) {
	tests := map[string]bool{
		"été":      true,
		"FRANÇAIS": true,
		"maison":   false,
		"home":     false,
	}
	for word, want := range tests {
		if got := IsFrench(word); got != want {
			t.Errorf("IsFrench(%q) = %v, want %v", word, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Curriculum
// ---------------------------------------------------------------------------

func TestDefaultCurriculum(t *testing.T) {
	domains := DefaultCurriculum()
	if len(domains) != 8 {
		t.Fatalf("got %d domains, want 8", len(domains))
	}
	seen := map[string]bool{}
	for _, d := range domains {
		if seen[d.ID] {
			t.Errorf("duplicate id %q", d.ID)
		}
		seen[d.ID] = true
		if d.Prompt == "" || d.Name == "" {
			t.Errorf("domain %q lacks name or prompt", d.ID)
		}
		if d.Language != "fr" && d.Language != "en" && d.Language != "both" {
			t.Errorf("domain %q has language %q", d.ID, d.Language)
		}
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curriculum.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCurriculum(t *testing.T) {
	path := writeFile(t, `
domains:
  - id: cuisine
    language: fr
    target_words: 300
    prompt: Enseigne-moi la cuisine.
  - id: garden
    name: Garden
    language: en
    prompt: Teach me gardening.
`)
	domains, err := LoadCurriculum(path)
	if err != nil {
		t.Fatalf("LoadCurriculum: %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("got %d domains", len(domains))
	}
	if domains[0].Name != "cuisine" {
		t.Errorf("name should default to id, got %q", domains[0].Name)
	}
	if domains[0].TargetWords != 300 || domains[1].Name != "Garden" {
		t.Errorf("unexpected domains: %+v", domains)
	}
}

func TestLoadCurriculum_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"not yaml", "domains: [", "invalid YAML"},
		{"empty", "domains: []", "at least one domain"},
		{"missing id", "domains:\n  - language: fr\n    prompt: x\n", "id is required"},
		{"bad language", "domains:\n  - id: a\n    language: de\n    prompt: x\n", "language"},
		{"missing prompt", "domains:\n  - id: a\n    language: fr\n", "prompt is required"},
		{"duplicate", "domains:\n  - {id: a, language: fr, prompt: x}\n  - {id: a, language: en, prompt: y}\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCurriculum(writeFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Learner
// ---------------------------------------------------------------------------

func TestStats_BeforeRun(t *testing.T) {
	l := New(newTestStore(t), nil, Options{})
	stats, err := l.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["phase"] != "not_started" || stats["is_autonomous"] != false {
		t.Errorf("unexpected phase: %v", stats)
	}
	if stats["vocabulary_fr_count"] != 0 || stats["domains_completed"] != 0 || stats["domains_total"] != 8 {
		t.Errorf("unexpected counts: %v", stats)
	}
	if stats["start_time"] != nil || stats["duration"] != nil {
		t.Errorf("expected nil times: %v", stats)
	}

	needs, err := l.NeedsMentor(context.Background())
	if err != nil || !needs {
		t.Errorf("NeedsMentor = %v, %v; want true", needs, err)
	}
}

func TestRun_NoMentor(t *testing.T) {
	l := New(newTestStore(t), nil, Options{})
	if _, err := l.Run(context.Background()); !errors.Is(err, ErrNoMentor) {
		t.Fatalf("expected ErrNoMentor, got %v", err)
	}
	st, err := l.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != PhaseNotStarted {
		t.Errorf("phase = %s, want not_started", st.Phase)
	}
}

func TestRun_CompletesAndBecomesAutonomous(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mentor := constantMentor(bilingualReply)

	var events []ProgressEvent
	l := New(s, mentor, Options{Progress: func(ev ProgressEvent) { events = append(events, ev) }})

	readiness, err := l.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mentor.callCount() != 8 {
		t.Errorf("mentor called %d times, want 8", mentor.callCount())
	}
	if len(events) != 16 {
		t.Errorf("got %d progress events, want 16", len(events))
	}

	// Vocabulary sizes are far below the thresholds.
	if readiness.Ready() {
		t.Error("expected readiness to fail on vocabulary size")
	}
	for _, c := range readiness.Checks {
		switch c.Name {
		case "All domains learned", "Knowledge acquired":
			if !c.Passed {
				t.Errorf("check %q failed", c.Name)
			}
		}
	}

	autonomous, _ := l.IsAutonomous(ctx)
	needs, _ := l.NeedsMentor(ctx)
	if !autonomous || needs {
		t.Errorf("autonomous=%v needsMentor=%v", autonomous, needs)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["domains_completed"] != 8 || stats["mentor_sessions"] != 8 || stats["knowledge_entries"] != 8 {
		t.Errorf("unexpected stats: %v", stats)
	}
	if stats["start_time"] == nil || stats["duration"] == nil {
		t.Errorf("expected times in stats: %v", stats)
	}

	// fr domains get every word, "both" domains only accented ones.
	fr, _ := s.VocabularyCount(ctx, "fr")
	en, _ := s.VocabularyCount(ctx, "en")
	wantFR := len(ExtractVocabulary(bilingualReply, "fr"))
	wantEN := len(ExtractVocabulary(bilingualReply, "en"))
	if fr != wantFR || en != wantEN {
		t.Errorf("vocabulary fr=%d en=%d, want %d and %d", fr, en, wantFR, wantEN)
	}
}

func TestRun_AfterAutonomy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mentor := constantMentor("bonjour")
	l := New(s, mentor, Options{})
	if _, err := l.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	if _, err := l.Run(ctx); !errors.Is(err, ErrAlreadyAutonomous) {
		t.Fatalf("second Run: expected ErrAlreadyAutonomous, got %v", err)
	}
	if mentor.callCount() != 8 {
		t.Errorf("mentor called again after autonomy: %d calls", mentor.callCount())
	}
}

func TestRun_FailedDomainIsSkipped(t *testing.T) {
	ctx := context.Background()
	mentor := &fakeMentor{respond: func(_ int, prompt string) (string, error) {
		if strings.Contains(prompt, "idiomatic") {
			return "", errors.New("upstream unavailable")
		}
		return "maison", nil
	}}
	var failed []string
	l := New(newTestStore(t), mentor, Options{Progress: func(ev ProgressEvent) {
		if ev.Done && ev.Err != nil {
			failed = append(failed, ev.Domain.ID)
		}
	}})

	readiness, err := l.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(failed, []string{"expressions_idiomatiques_en"}) {
		t.Errorf("failed domains = %v", failed)
	}
	for _, c := range readiness.Checks {
		if c.Name == "All domains learned" && c.Passed {
			t.Error("all-domains check should fail")
		}
	}
	if ok, _ := l.IsAutonomous(ctx); !ok {
		t.Error("learner should be autonomous even when a domain failed")
	}
}

func TestRun_EmptyReplyStillCompletesDomain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := New(s, constantMentor("ok !"), Options{})
	if _, err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	done, _ := s.CompletedDomains(ctx)
	if len(done) != 8 {
		t.Errorf("completed %d domains, want 8", len(done))
	}
}

func TestRun_EmptyReplyFromAnthropic(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":""}]}`))
	}))
	defer srv.Close()

	mentor := llm.WithRetry(anthropic.New("sk-ant-test", "", anthropic.WithBaseURL(srv.URL)), 2)
	s := newTestStore(t)
	l := New(s, mentor, Options{Curriculum: []Domain{
		{ID: "famille", Name: "Famille", Language: "fr", Prompt: "famille"},
	}})

	readiness, err := l.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	done, _ := s.CompletedDomains(ctx)
	if !reflect.DeepEqual(done, []string{"famille"}) {
		t.Errorf("completed domains = %v", done)
	}
	for _, c := range readiness.Checks {
		if (c.Name == "All domains learned" || c.Name == "Knowledge acquired") && !c.Passed {
			t.Errorf("check %q failed", c.Name)
		}
	}
	if n, _ := s.VocabularyCount(ctx, "fr"); n != 0 {
		t.Errorf("vocabulary = %d, want 0", n)
	}
}

func TestRun_RecordsLearnings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mem := memory.New(s, memory.Options{})
	l := New(s, constantMentor(bilingualReply), Options{Memory: mem})

	if _, err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	learnings, err := mem.Search(ctx, memory.Filter{Kind: memory.KindLearning})
	if err != nil {
		t.Fatal(err)
	}
	if len(learnings) != 8 {
		t.Fatalf("got %d learning memories, want 8", len(learnings))
	}
	for _, e := range learnings {
		if e.Importance != memory.High || !strings.HasPrefix(e.Content, "Appris: ") {
			t.Errorf("unexpected learning: %+v", e)
		}
		if len(e.Tags) != 2 || e.Tags[1] != "apprentissage" {
			t.Errorf("tags = %v", e.Tags)
		}
	}

	c, err := mem.Consolidate(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if c.Learnings != 8 || len(c.KeyEvents) != 8 {
		t.Errorf("learnings=%d key events=%d, want 8 and 8", c.Learnings, len(c.KeyEvents))
	}

	stats, err := mem.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["concepts_learned"] != 8 || stats["learnings"] != 8 {
		t.Errorf("unexpected memory stats: %v", stats)
	}
}

func TestRun_FinishesHandoverFromCompletedPhase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	start := time.Now().UTC().Add(-time.Hour)
	err := s.SaveBootstrap(ctx, &store.BootstrapState{
		Phase:          string(PhaseCompleted),
		StartTime:      &start,
		UseMentor:      true,
		MentorSessions: 8,
	})
	if err != nil {
		t.Fatal(err)
	}

	l := New(s, nil, Options{})
	if needs, _ := l.NeedsMentor(ctx); !needs {
		t.Fatal("completed phase should still report the mentor as needed")
	}
	readiness, err := l.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if readiness == nil || len(readiness.Checks) != 4 {
		t.Fatalf("readiness = %+v", readiness)
	}

	st, err := l.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != PhaseAutonomous || st.UseMentor || st.EndTime == nil {
		t.Errorf("after handover: %+v", st)
	}
	if needs, _ := l.NeedsMentor(ctx); needs {
		t.Error("mentor still needed after handover")
	}
	if _, err := l.Run(ctx); !errors.Is(err, ErrAlreadyAutonomous) {
		t.Errorf("second Run: expected ErrAlreadyAutonomous, got %v", err)
	}
}

func TestRun_CancelThenResume(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &fakeMentor{respond: func(n int, _ string) (string, error) {
		if n == 3 {
			cancel()
			return "", context.Canceled
		}
		return "maison", nil
	}}
	l := New(s, first, Options{})
	if _, err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	st, err := l.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != PhaseInProgress || st.MentorSessions != 3 {
		t.Fatalf("after cancel: phase=%s sessions=%d", st.Phase, st.MentorSessions)
	}
	startedAt := *st.StartTime

	second := constantMentor("maison")
	l = New(s, second, Options{})
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if second.callCount() != 6 {
		t.Errorf("resumed run asked %d domains, want 6", second.callCount())
	}
	st, _ = l.State(context.Background())
	if st.Phase != PhaseAutonomous || !st.StartTime.Equal(startedAt) {
		t.Errorf("after resume: phase=%s start=%v (was %v)", st.Phase, st.StartTime, startedAt)
	}
}

func TestRun_ReadyWithLargeVocabulary(t *testing.T) {
	ctx := context.Background()
	words := func(prefix string) string {
		var b strings.Builder
		for i := 0; i <= MinWordsPerLanguage; i++ {
			fmt.Fprintf(&b, "%s%c%c%c\n", prefix, 'a'+i/676, 'a'+(i/26)%26, 'a'+i%26)
		}
		return b.String()
	}
	mentor := &fakeMentor{respond: func(_ int, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "fr") {
			return words("é"), nil
		}
		return words("x"), nil
	}}
	l := New(newTestStore(t), mentor, Options{Curriculum: []Domain{
		{ID: "fr", Language: "fr", Prompt: "fr words"},
		{ID: "en", Language: "en", Prompt: "en words"},
	}})

	readiness, err := l.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !readiness.Ready() {
		t.Fatalf("expected ready, checks: %+v", readiness.Checks)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("éééé", 2); got != "éé" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 200); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
