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

// GeminiProvider talks to the Google Generative Language API.
type GeminiProvider struct {
	client *http.Client
	cfg    Config
	apiURL string
}

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

func NewGeminiProvider(cfg Config) *GeminiProvider {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = geminiDefaultBaseURL
	}
	return &GeminiProvider{
		client: &http.Client{},
		cfg:    cfg,
		apiURL: apiURL,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Outcome, error) {
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

	if strings.TrimSpace(visible) == "" && resp.thoughtsOnly() {
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
		outcome.Diagnostic = diagnosticFor(resp.partKinds(), resp.finishReason(), visible)
	}
	return outcome, nil
}

func (p *GeminiProvider) complete(ctx context.Context, params resolved, thinkingBudget int) (*geminiResponse, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: params.user}}},
		},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: params.maxTokens,
		},
	}
	if params.system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: params.system}}}
	}
	// thinkingBudget 0 explicitly disables thinking on models that default
	// to dynamic thinking.
	reqBody.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: thinkingBudget}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.apiURL, params.model)
	resp, err := doWithRetry(ctx, p.client, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, fmt.Errorf("gemini: create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.cfg.APIKey != "" {
			req.Header.Set("X-Goog-Api-Key", p.cfg.APIKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr geminiErrorEnvelope
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error != nil {
			return nil, fmt.Errorf("%w: gemini api error (%s): %s", ErrMalformedResponse, apiErr.Error.Status, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("gemini: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: gemini: decode response: %v", ErrMalformedResponse, err)
	}
	return &parsed, nil
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount        int `json:"promptTokenCount"`
		CandidatesTokenCount    int `json:"candidatesTokenCount"`
		ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
		CachedContentTokenCount int `json:"cachedContentTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorEnvelope struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (r *geminiResponse) visibleText() string {
	var b strings.Builder
	for _, candidate := range r.Candidates {
		for _, part := range candidate.Content.Parts {
			if !part.Thought {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

// thoughtsOnly reports whether the model spent tokens thinking but produced no
// visible text.
func (r *geminiResponse) thoughtsOnly() bool {
	if r.UsageMetadata.ThoughtsTokenCount > 0 {
		return true
	}
	for _, candidate := range r.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				return true
			}
		}
	}
	return false
}

func (r *geminiResponse) partKinds() []string {
	var kinds []string
	for _, candidate := range r.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				kinds = append(kinds, "thought")
			} else {
				kinds = append(kinds, "text")
			}
		}
	}
	return kinds
}

func (r *geminiResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return "no_candidates"
	}
	return r.Candidates[0].FinishReason
}

func (r *geminiResponse) usage() Usage {
	return Usage{
		InputTokens:     r.UsageMetadata.PromptTokenCount,
		OutputTokens:    r.UsageMetadata.CandidatesTokenCount + r.UsageMetadata.ThoughtsTokenCount,
		CacheReadTokens: r.UsageMetadata.CachedContentTokenCount,
	}
}
