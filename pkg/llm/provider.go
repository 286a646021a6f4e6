package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Task identifies the kind of content a generation call produces.
type Task string

const (
	TaskPost  Task = "post"
	TaskReply Task = "reply"
	TaskQuote Task = "quote"
)

// Provider generates post candidates from a theme or prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Outcome, error)
}

// Request describes a single generation call. Zero fields fall back to
// task-level and then global configuration.
type Request struct {
	Task         Task
	Theme        string
	Prompt       string // explicit user prompt, overrides the themed default
	SystemPrompt string // explicit system prompt, overrides task configuration
	Model        string
	MaxTokens    int
	Effort       string // reasoning effort hint: "none", "low", "high"
	MaxLength    int    // desired character limit for each candidate
	Tone         string
	Audience     string
	Note         string
}

// Candidate is one usable text variant extracted from model output.
type Candidate struct {
	Text      string
	Label     string
	CharCount int
}

// Usage holds token counters for a single call.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Outcome is the per-call result. Zero candidates with a non-empty Diagnostic
// means the call completed but produced nothing usable.
type Outcome struct {
	Provider   string
	Model      string
	Candidates []Candidate
	Usage      Usage
	Diagnostic string
}

// BudgetGate is consulted before every generation call. ShouldPause true is a
// hard stop, not a warning.
type BudgetGate interface {
	ShouldPause(ctx context.Context) (bool, error)
}

// UsageRecorder receives token usage and estimated cost for every call that
// reached the network, regardless of how the call ended.
type UsageRecorder interface {
	RecordGeneration(provider, model string, task Task, usage Usage, costUSD float64)
}

// Pricer estimates the dollar cost of a call.
type Pricer interface {
	EstimateCost(usage Usage, model string, batch bool) float64
}

// TaskConfig overrides generation parameters for one task.
type TaskConfig struct {
	Model        string
	MaxTokens    int
	Effort       string
	SystemPrompt string
}

// Config configures a provider.
type Config struct {
	Provider    string
	APIKey      string
	APIURL      string
	Model       string // global default model
	MaxTokens   int    // global default token budget
	Effort      string // global default effort hint
	Timeout     time.Duration
	BudgetPause bool // consult the budget gate before each call
	Tasks       map[Task]TaskConfig

	Gate     BudgetGate
	Recorder UsageRecorder
	Pricer   Pricer
}

const defaultTimeout = 90 * time.Second

// Per-task fallbacks applied when neither the request nor the task
// configuration names a value.
var taskDefaults = map[Task]TaskConfig{
	TaskPost:  {MaxTokens: 2048, Effort: "low"},
	TaskReply: {MaxTokens: 1024, Effort: "none"},
	TaskQuote: {MaxTokens: 1024, Effort: "none"},
}

// NewProvider creates a provider for the given backend name.
func NewProvider(name string, cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "claude":
		return NewClaudeProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown LLM provider %q", ErrConfiguration, name)
	}
}

// resolved holds the effective parameters for one call after applying the
// request > task config > task default > global default priority chain.
type resolved struct {
	model     string
	maxTokens int
	effort    string
	system    string
	user      string
}

func (c Config) resolve(req Request) (resolved, error) {
	taskCfg := c.Tasks[req.Task]
	defaults := taskDefaults[req.Task]

	r := resolved{
		model:     firstNonEmpty(req.Model, taskCfg.Model, defaults.Model, c.Model),
		maxTokens: firstPositive(req.MaxTokens, taskCfg.MaxTokens, defaults.MaxTokens, c.MaxTokens),
		effort:    firstNonEmpty(req.Effort, taskCfg.Effort, defaults.Effort, c.Effort),
	}
	if r.model == "" {
		return resolved{}, fmt.Errorf("%w: no model configured for task %q", ErrConfiguration, req.Task)
	}
	if r.maxTokens <= 0 {
		r.maxTokens = 2048
	}

	r.system = req.SystemPrompt
	if r.system == "" {
		r.system = systemPromptFor(req.Task, taskCfg)
	}
	r.user = req.Prompt
	if r.user == "" {
		r.user = userPromptFor(req)
	}
	return r, nil
}

// checkBudget enforces the monthly spend ceiling before any network call.
func (c Config) checkBudget(ctx context.Context) error {
	if !c.BudgetPause || c.Gate == nil {
		return nil
	}
	pause, err := c.Gate.ShouldPause(ctx)
	if err != nil {
		return fmt.Errorf("budget gate: %w", err)
	}
	if pause {
		return fmt.Errorf("%w: pausing generation until next month or a raised ceiling", ErrBudgetExceeded)
	}
	return nil
}

func (c Config) recordUsage(provider, model string, task Task, usage Usage) {
	if c.Recorder == nil {
		return
	}
	var cost float64
	if c.Pricer != nil {
		cost = c.Pricer.EstimateCost(usage, model, false)
	}
	c.Recorder.RecordGeneration(provider, model, task, usage, cost)
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
