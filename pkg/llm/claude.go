package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ClaudeProvider talks to the Anthropic Messages API.
type ClaudeProvider struct {
	client *http.Client
	cfg    Config
	apiURL string
}

const (
	claudeAPIVersion     = "2023-06-01"
	minThinkingBudget    = 1024
	claudeDefaultBaseURL = "https://api.anthropic.com"
)

func NewClaudeProvider(cfg Config) *ClaudeProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = claudeDefaultBaseURL
	}
	return &ClaudeProvider{
		client: &http.Client{},
		cfg:    cfg,
		apiURL: apiURL,
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

func (p *ClaudeProvider) Generate(ctx context.Context, req Request) (*Outcome, error) {
	if err := p.cfg.checkBudget(ctx); err != nil {
		return nil, err
	}
	params, err := p.cfg.resolve(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.timeout())
	defer cancel()

	resp, err := p.complete(ctx, params, thinkingBudgetFor(params.effort, params.maxTokens))
	if err != nil {
		return nil, err
	}

	usage := resp.usage()
	visible := resp.visibleText()

	// The token budget was burned entirely on thinking: one retry with
	// thinking off so the full budget goes to visible text.
	if strings.TrimSpace(visible) == "" && resp.hasThinking() {
		retryResp, retryErr := p.complete(ctx, params, 0)
		if retryErr != nil {
			p.cfg.recordUsage(p.Name(), params.model, req.Task, usage)
			return nil, retryErr
		}
		usage = addUsage(usage, retryResp.usage())
		resp = retryResp
		visible = resp.visibleText()
	}

	p.cfg.recordUsage(p.Name(), params.model, req.Task, usage)

	outcome := &Outcome{
		Provider:   p.Name(),
		Model:      params.model,
		Usage:      usage,
		Candidates: ParseCandidates(visible),
	}
	if len(outcome.Candidates) == 0 {
		outcome.Diagnostic = diagnosticFor(resp.blockTypes(), resp.StopReason, visible)
	}
	return outcome, nil
}

func (p *ClaudeProvider) complete(ctx context.Context, params resolved, thinkingBudget int) (*claudeResponse, error) {
	reqBody := claudeRequest{
		Model:     params.model,
		MaxTokens: params.maxTokens,
		System:    params.system,
		Messages: []claudeMessage{
			{Role: "user", Content: params.user},
		},
	}
	if thinkingBudget > 0 {
		reqBody.Thinking = &claudeThinking{Type: "enabled", BudgetTokens: thinkingBudget}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("claude: marshal request: %w", err)
	}

	resp, err := doWithRetry(ctx, p.client, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/v1/messages", bytes.NewReader(payload))
		if reqErr != nil {
			return nil, fmt.Errorf("claude: create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.cfg.APIKey != "" {
			req.Header.Set("X-API-Key", p.cfg.APIKey)
		}
		req.Header.Set("Anthropic-Version", claudeAPIVersion)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("claude: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("claude: read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr claudeResponse
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error != nil {
			return nil, fmt.Errorf("%w: claude api error (%s): %s", ErrMalformedResponse, apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("claude: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var parsed claudeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: claude: decode response: %v", ErrMalformedResponse, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: claude api error (%s): %s", ErrMalformedResponse, parsed.Error.Type, parsed.Error.Message)
	}
	return &parsed, nil
}

// thinkingBudgetFor maps the effort hint to an extended-thinking token budget.
// Zero disables thinking.
func thinkingBudgetFor(effort string, maxTokens int) int {
	switch effort {
	case "high":
		budget := maxTokens * 3 / 4
		if budget < minThinkingBudget {
			budget = minThinkingBudget
		}
		return budget
	case "low":
		return minThinkingBudget
	default:
		return 0
	}
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
	Thinking  *claudeThinking `json:"thinking,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type claudeResponse struct {
	Type       string               `json:"type"`
	Content    []claudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
	Error      *claudeAPIError      `json:"error,omitempty"`
}

type claudeContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type claudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

type claudeAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (r *claudeResponse) visibleText() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func (r *claudeResponse) hasThinking() bool {
	for _, block := range r.Content {
		if block.Type == "thinking" || block.Type == "redacted_thinking" {
			return true
		}
	}
	return false
}

func (r *claudeResponse) blockTypes() []string {
	types := make([]string, 0, len(r.Content))
	for _, block := range r.Content {
		types = append(types, block.Type)
	}
	return types
}

func (r *claudeResponse) usage() Usage {
	return Usage{
		InputTokens:      r.Usage.InputTokens,
		OutputTokens:     r.Usage.OutputTokens,
		CacheReadTokens:  r.Usage.CacheReadInputTokens,
		CacheWriteTokens: r.Usage.CacheCreationInputTokens,
	}
}

func addUsage(a, b Usage) Usage {
	return Usage{
		InputTokens:      a.InputTokens + b.InputTokens,
		OutputTokens:     a.OutputTokens + b.OutputTokens,
		CacheReadTokens:  a.CacheReadTokens + b.CacheReadTokens,
		CacheWriteTokens: a.CacheWriteTokens + b.CacheWriteTokens,
	}
}

// diagnosticFor summarizes an unusable response so the execution log can name
// exactly what came back.
func diagnosticFor(blockTypes []string, stopReason, text string) string {
	preview := strings.TrimSpace(text)
	if runes := []rune(preview); len(runes) > 120 {
		preview = string(runes[:120]) + "..."
	}
	return fmt.Sprintf("no usable candidates: blocks=[%s] stop_reason=%s text_len=%d preview=%q",
		strings.Join(blockTypes, ","), stopReason, len(text), preview)
}
