package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeGate struct {
	pause bool
	calls int
}

func (g *fakeGate) ShouldPause(ctx context.Context) (bool, error) {
	g.calls++
	return g.pause, nil
}

type recordedUsage struct {
	provider string
	model    string
	task     Task
	usage    Usage
	cost     float64
}

type fakeRecorder struct {
	events []recordedUsage
}

func (r *fakeRecorder) RecordGeneration(provider, model string, task Task, usage Usage, costUSD float64) {
	r.events = append(r.events, recordedUsage{provider, model, task, usage, costUSD})
}

func claudeTextResponse(text string, usage claudeUsage) string {
	resp := claudeResponse{
		Type:       "message",
		Content:    []claudeContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      usage,
	}
	payload, _ := json.Marshal(resp)
	return string(payload)
}

func TestClaudeGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("expected api key header")
		}
		if r.Header.Get("Anthropic-Version") != claudeAPIVersion {
			t.Errorf("expected version header")
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.System == "" {
			t.Errorf("expected a system prompt")
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		fmt.Fprint(w, claudeTextResponse(`{"variants":[{"body":"morning post"}]}`, claudeUsage{InputTokens: 100, OutputTokens: 20}))
	}))
	defer server.Close()

	recorder := &fakeRecorder{}
	provider := NewClaudeProvider(Config{
		APIURL:   server.URL,
		APIKey:   "test-key",
		Model:    "claude-sonnet-4-5",
		Recorder: recorder,
		Pricer:   TablePricer{},
	})

	outcome, err := provider.Generate(context.Background(), Request{Task: TaskPost, Theme: "mornings"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(outcome.Candidates) != 1 || outcome.Candidates[0].Text != "morning post" {
		t.Fatalf("unexpected candidates: %+v", outcome.Candidates)
	}
	if outcome.Usage.InputTokens != 100 || outcome.Usage.OutputTokens != 20 {
		t.Fatalf("unexpected usage: %+v", outcome.Usage)
	}
	if len(recorder.events) != 1 {
		t.Fatalf("expected 1 usage event, got %d", len(recorder.events))
	}
	if recorder.events[0].cost <= 0 {
		t.Fatalf("expected positive estimated cost, got %v", recorder.events[0].cost)
	}
}

func TestClaudeGenerateBudgetGateBlocks(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	gate := &fakeGate{pause: true}
	provider := NewClaudeProvider(Config{
		APIURL:      server.URL,
		Model:       "claude-sonnet-4-5",
		BudgetPause: true,
		Gate:        gate,
	})

	_, err := provider.Generate(context.Background(), Request{Task: TaskPost, Theme: "x"})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected zero network calls, got %d", got)
	}
	if gate.calls != 1 {
		t.Fatalf("expected 1 gate consultation, got %d", gate.calls)
	}
}

func TestClaudeGenerateRateLimitExhaustion(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewClaudeProvider(Config{APIURL: server.URL, Model: "claude-sonnet-4-5"})

	_, err := provider.Generate(context.Background(), Request{Task: TaskReply, Theme: "x"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != int32(maxRetries)+1 {
		t.Fatalf("expected %d attempts, got %d", maxRetries+1, got)
	}
}

func TestClaudeGenerateAPIErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad prompt"}}`)
	}))
	defer server.Close()

	provider := NewClaudeProvider(Config{APIURL: server.URL, Model: "claude-sonnet-4-5"})

	_, err := provider.Generate(context.Background(), Request{Task: TaskPost, Theme: "x"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}
}

func TestClaudeGenerateThinkingStarvationRetry(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if n == 1 {
			if req.Thinking == nil {
				t.Errorf("expected thinking enabled on first attempt")
			}
			resp := claudeResponse{
				Type:       "message",
				Content:    []claudeContentBlock{{Type: "thinking", Thinking: "deliberating..."}},
				StopReason: "max_tokens",
				Usage:      claudeUsage{InputTokens: 50, OutputTokens: 512},
			}
			payload, _ := json.Marshal(resp)
			fmt.Fprint(w, string(payload))
			return
		}
		if req.Thinking != nil {
			t.Errorf("expected thinking disabled on starvation retry")
		}
		fmt.Fprint(w, claudeTextResponse(`{"variants":[{"body":"recovered"}]}`, claudeUsage{InputTokens: 50, OutputTokens: 30}))
	}))
	defer server.Close()

	recorder := &fakeRecorder{}
	provider := NewClaudeProvider(Config{
		APIURL:   server.URL,
		Model:    "claude-sonnet-4-5",
		Recorder: recorder,
		Pricer:   TablePricer{},
		Tasks:    map[Task]TaskConfig{TaskPost: {Effort: "high"}},
	})

	outcome, err := provider.Generate(context.Background(), Request{Task: TaskPost, Theme: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
	if len(outcome.Candidates) != 1 || outcome.Candidates[0].Text != "recovered" {
		t.Fatalf("unexpected candidates: %+v", outcome.Candidates)
	}
	// usage from both attempts is accounted
	if outcome.Usage.OutputTokens != 542 {
		t.Fatalf("expected accumulated output tokens 542, got %d", outcome.Usage.OutputTokens)
	}
	if len(recorder.events) != 1 {
		t.Fatalf("expected a single usage event, got %d", len(recorder.events))
	}
}

func TestClaudeGenerateZeroCandidatesDiagnostic(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, claudeTextResponse(`{"variants":[{"bod`, claudeUsage{InputTokens: 10, OutputTokens: 200}))
	}))
	defer server.Close()

	provider := NewClaudeProvider(Config{APIURL: server.URL, Model: "claude-sonnet-4-5"})

	outcome, err := provider.Generate(context.Background(), Request{Task: TaskPost, Theme: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(outcome.Candidates) != 0 {
		t.Fatalf("expected zero candidates, got %+v", outcome.Candidates)
	}
	if outcome.Diagnostic == "" {
		t.Fatal("expected diagnostic for unusable response")
	}
}
