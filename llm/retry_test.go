package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyClient fails the first n calls with err, then answers "ok".
type flakyClient struct {
	fails int
	err   error
	calls int
}

func (f *flakyClient) Complete(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.calls <= f.fails {
		return "", f.err
	}
	return "ok", nil
}

func fastRetry(c Client, tries uint) *RetryClient {
	r := WithRetry(c, tries)
	r.InitialInterval = time.Millisecond
	return r
}

func TestRetry_RecoversFromTemporaryErrors(t *testing.T) {
	inner := &flakyClient{fails: 2, err: &APIError{Status: 503, Body: "overloaded"}}
	var retries int
	r := fastRetry(inner, 3)
	r.OnRetry = func(error, time.Duration) { retries++ }

	out, err := r.Complete(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" {
		t.Fatalf("got %q, want ok", out)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
	if retries != 2 {
		t.Fatalf("retries = %d, want 2", retries)
	}
}

func TestRetry_GivesUpAfterMaxTries(t *testing.T) {
	inner := &flakyClient{fails: 10, err: errors.New("connection reset")}
	_, err := fastRetry(inner, 2).Complete(context.Background(), "", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}

func TestRetry_ClientErrorIsPermanent(t *testing.T) {
	inner := &flakyClient{fails: 10, err: &APIError{Status: 401, Body: "bad key"}}
	_, err := fastRetry(inner, 5).Complete(context.Background(), "", "hi")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1", inner.calls)
	}
}

func TestRetry_RateLimitIsRetried(t *testing.T) {
	inner := &flakyClient{fails: 1, err: &APIError{Status: 429}}
	if _, err := fastRetry(inner, 3).Complete(context.Background(), "", "hi"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("calls = %d, want 2", inner.calls)
	}
}

func TestAPIError_Temporary(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{529, true},
	}
	for _, tt := range tests {
		if got := (&APIError{Status: tt.status}).Temporary(); got != tt.want {
			t.Errorf("Temporary(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
