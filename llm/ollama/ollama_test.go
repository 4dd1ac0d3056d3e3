package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFakeOllama(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		type model struct {
			Name string `json:"name"`
		}
		var resp struct {
			Models []model `json:"models"`
		}
		for _, m := range models {
			resp.Models = append(resp.Models, model{Name: m})
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		last := req.Messages[len(req.Messages)-1].Content
		json.NewEncoder(w).Encode(chatResponse{
			Model:   req.Model,
			Message: chatMessage{Role: "assistant", Content: "echo: " + last},
			Done:    true,
		})
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete(t *testing.T) {
	srv := newFakeOllama(t, "mistral:latest")
	c := New(srv.URL, "mistral", Options{Temperature: 0.7, MaxTokens: 500})

	out, err := c.Complete(context.Background(), "persona", "bonjour")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "echo: bonjour" {
		t.Fatalf("out = %q", out)
	}
}

func TestComplete_NoModel(t *testing.T) {
	srv := newFakeOllama(t)
	if _, err := New(srv.URL, "", Options{}).Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error without a model")
	}
}

func TestModelsAndHasModel(t *testing.T) {
	srv := newFakeOllama(t, "mistral:latest", "llama3.2:3b")
	c := New(srv.URL, "", Options{})

	models, err := c.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models = %v", models)
	}

	ok, err := c.HasModel(context.Background(), "mistral")
	if err != nil || !ok {
		t.Fatalf("HasModel(mistral) = %v, %v", ok, err)
	}
	ok, _ = c.HasModel(context.Background(), "gemma")
	if ok {
		t.Fatal("HasModel(gemma) should be false")
	}
}

func TestIsAvailable_Unreachable(t *testing.T) {
	srv := newFakeOllama(t)
	url := srv.URL
	srv.Close()
	if New(url, "", Options{}).IsAvailable(context.Background()) {
		t.Fatal("closed server reported available")
	}
}

func TestPull(t *testing.T) {
	srv := newFakeOllama(t)
	if err := New(srv.URL, "", Options{}).Pull(context.Background(), "gemma"); err != nil {
		t.Fatalf("Pull: %v", err)
	}
}

func TestMatchName(t *testing.T) {
	tests := []struct {
		installed, want string
		match           bool
	}{
		{"mistral:latest", "mistral", true},
		{"mistral:latest", "mistral:latest", true},
		{"mistral:7b", "mistral:latest", false},
		{"mistral-nemo:latest", "mistral", false},
		{"llama3.2:3b", "llama3.2", true},
	}
	for _, tt := range tests {
		if got := MatchName(tt.installed, tt.want); got != tt.match {
			t.Errorf("MatchName(%q, %q) = %v, want %v", tt.installed, tt.want, got, tt.match)
		}
	}
}
