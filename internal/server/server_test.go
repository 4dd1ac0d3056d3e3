package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/jxucoder/anna/internal/companion"
	"github.com/jxucoder/anna/internal/config"
	"github.com/jxucoder/anna/internal/memory"
	"github.com/jxucoder/anna/internal/metrics"
)

// ---------------------------------------------------------------------------
// truncate
// ---------------------------------------------------------------------------

func TestTruncate_ShortString(t *testing.T) {
	input := "hello"
	got := truncate(input, 10)
	if got != input {
		t.Errorf("truncate(%q, 10) = %q; want %q", input, got, input)
	}
}

func TestTruncate_LongASCII(t *testing.T) {
	input := "abcdefghijklmnopqrstuvwxyz"
	got := truncate(input, 10)
	want := "abcdefg..."
	if got != want {
		t.Errorf("truncate(%q, 10) = %q; want %q", input, got, want)
	}
	if runeCount := utf8.RuneCountInString(got); runeCount != 10 {
		t.Errorf("truncated result has %d runes; want 10", runeCount)
	}
}

func TestTruncate_ExactLength(t *testing.T) {
	input := "exactly10!" // 10 runes
	got := truncate(input, 10)
	if got != input {
		t.Errorf("truncate(%q, 10) = %q; want %q (unchanged)", input, got, input)
	}
}

func TestTruncate_MultiByte(t *testing.T) {
	// Accented letters are one rune but two bytes.
	input := "Ça fait déjà très longtemps, à bientôt" // 38 runes
	got := truncate(input, 15)

	if runeCount := utf8.RuneCountInString(got); runeCount != 15 {
		t.Errorf("truncated result has %d runes; want 15", runeCount)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated result is not valid UTF-8: %q", got)
	}
	if want := "Ça fait déjà..."; got != want {
		t.Errorf("truncate = %q; want %q", got, want)
	}
}

func TestTruncate_EmptyString(t *testing.T) {
	got := truncate("", 10)
	if got != "" {
		t.Errorf("truncate(\"\", 10) = %q; want \"\"", got)
	}
}

// ---------------------------------------------------------------------------
// HTTP API
// ---------------------------------------------------------------------------

type fakeCompanion struct {
	calls []chatRequest
	err   error
}

func (f *fakeCompanion) Reply(_ context.Context, conversationID, speaker, message string) (*companion.Reply, error) {
	f.calls = append(f.calls, chatRequest{ConversationID: conversationID, Speaker: speaker, Message: message})
	if f.err != nil {
		return nil, f.err
	}
	return &companion.Reply{
		ConversationID: conversationID,
		Text:           "Bonjour !",
		Backend:        companion.BackendLocal,
		Duration:       1500 * time.Millisecond,
	}, nil
}

func (f *fakeCompanion) Stats(context.Context) (map[string]any, error) {
	return map[string]any{"bootstrap.phase": "autonomous", "memory.total_memories": 3}, nil
}

type fakeMemories struct {
	last memory.Filter
}

func (f *fakeMemories) Search(_ context.Context, filter memory.Filter) ([]memory.Entry, error) {
	f.last = filter
	return []memory.Entry{{ID: 7, Kind: memory.KindConversation, Content: "bonjour", Speaker: "Pierre", Importance: memory.Medium}}, nil
}

func newTestServer(t *testing.T, c *fakeCompanion) (*httptest.Server, *fakeMemories) {
	t.Helper()
	mem := &fakeMemories{}
	cfg := &config.Config{ServerAddr: "127.0.0.1:0", Speaker: "family"}
	s := New(cfg, c, mem, metrics.New(nil, zerolog.Nop()), zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, mem
}

func postChat(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeCompanion{})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestChat(t *testing.T) {
	fc := &fakeCompanion{}
	srv, _ := newTestServer(t, fc)

	resp := postChat(t, srv.URL, `{"conversation_id":"c1","speaker":"Pierre","message":"Salut"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ConversationID != "c1" || out.Reply != "Bonjour !" || out.Backend != "local" || out.DurationMS != 1500 {
		t.Errorf("response = %+v", out)
	}
}

func TestChat_Defaults(t *testing.T) {
	fc := &fakeCompanion{}
	srv, _ := newTestServer(t, fc)

	resp := postChat(t, srv.URL, `{"message":"Salut"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(fc.calls) != 1 {
		t.Fatalf("companion called %d times", len(fc.calls))
	}
	call := fc.calls[0]
	if call.Speaker != "family" {
		t.Errorf("speaker = %q, want configured default", call.Speaker)
	}
	if len(call.ConversationID) != 36 {
		t.Errorf("conversation id %q is not a uuid", call.ConversationID)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"empty message", `{"message":""}`, nil, http.StatusBadRequest},
		{"bad json", `{"message":`, nil, http.StatusBadRequest},
		{"blank message", `{"message":"  "}`, companion.ErrEmptyMessage, http.StatusBadRequest},
		{"no backend", `{"message":"hi"}`, companion.ErrNoBackend, http.StatusServiceUnavailable},
		{"model failure", `{"message":"hi"}`, errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &fakeCompanion{err: tt.err})
			resp := postChat(t, srv.URL, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var out errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Error == "" {
				t.Errorf("expected JSON error body, got %v / %+v", err, out)
			}
		})
	}
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, &fakeCompanion{})
	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["bootstrap.phase"] != "autonomous" {
		t.Errorf("stats = %v", stats)
	}
}

func TestMemories(t *testing.T) {
	srv, mem := newTestServer(t, &fakeCompanion{})

	resp, err := http.Get(srv.URL + "/api/memories?q=bon&kind=conversation&limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out []memoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != 7 || out[0].Kind != "conversation" {
		t.Errorf("memories = %+v", out)
	}
	if mem.last.Query != "bon" || mem.last.Kind != memory.KindConversation || mem.last.Limit != 5 {
		t.Errorf("filter = %+v", mem.last)
	}

	for _, q := range []string{"kind=dream", "limit=-1", "limit=many"} {
		resp, err := http.Get(srv.URL + "/api/memories?" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeCompanion{})
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
