package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jxucoder/anna/llm"
)

func TestComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-ant-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"maison (nom)"}]}`))
	}))
	defer srv.Close()

	c := New("sk-ant-test", "", WithBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), "be a mentor", "teach me")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "maison (nom)" {
		t.Fatalf("out = %q", out)
	}
	if got["model"] != DefaultModel {
		t.Errorf("model = %v, want %s", got["model"], DefaultModel)
	}
	if got["system"] != "be a mentor" {
		t.Errorf("system = %v", got["system"])
	}
	if got["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid x-api-key"}`))
	}))
	defer srv.Close()

	_, err := New("bad", "", WithBaseURL(srv.URL)).Complete(context.Background(), "", "hi")
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || !strings.Contains(apiErr.Body, "invalid") {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestComplete_NoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"tool_use"}]}`))
	}))
	defer srv.Close()

	_, err := New("k", "", WithBaseURL(srv.URL)).Complete(context.Background(), "", "hi")
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}
