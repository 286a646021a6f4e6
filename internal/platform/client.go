// Package platform talks to the posting proxy, the external service that owns
// platform credentials and request signing. The proxy exposes two narrow
// operations: submit a post and suggest engagement targets.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkmanabu122003/x-autopilot-sub001/internal/autopost"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("platform client requires a base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type publishRequest struct {
	Text      string `json:"text"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	QuoteID   string `json:"quote_id,omitempty"`
}

type publishResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (c *Client) Publish(ctx context.Context, text string, opts autopost.PublishOptions) (autopost.PostResult, error) {
	var resp publishResponse
	err := c.post(ctx, "/v1/posts", publishRequest{
		Text:      text,
		ReplyToID: opts.ReplyToID,
		QuoteID:   opts.QuoteID,
	}, &resp)
	if err != nil {
		return autopost.PostResult{}, err
	}
	if resp.ID == "" {
		return autopost.PostResult{}, errors.New("posting proxy returned no post id")
	}
	return autopost.PostResult{ID: resp.ID}, nil
}

type suggestRequest struct {
	AccountID string   `json:"account_id"`
	Limit     int      `json:"limit"`
	Exclude   []string `json:"exclude,omitempty"`
}

type suggestResponse struct {
	Targets []struct {
		ID     string `json:"id"`
		Text   string `json:"text"`
		Handle string `json:"handle"`
	} `json:"targets"`
	Error string `json:"error"`
}

func (c *Client) Suggest(ctx context.Context, accountID string, limit int, exclude []string) ([]autopost.Target, error) {
	var resp suggestResponse
	err := c.post(ctx, "/v1/targets/suggest", suggestRequest{
		AccountID: accountID,
		Limit:     limit,
		Exclude:   exclude,
	}, &resp)
	if err != nil {
		return nil, err
	}
	targets := make([]autopost.Target, 0, len(resp.Targets))
	for _, t := range resp.Targets {
		targets = append(targets, autopost.Target{ID: t.ID, Text: t.Text, Handle: t.Handle})
	}
	return targets, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting proxy request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("posting proxy %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("posting proxy %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Disabled replaces the client when no posting proxy is configured. Publishes
// fail so immediate-mode slots degrade to drafts, suggestions come back empty.
type Disabled struct{}

func (Disabled) Publish(ctx context.Context, text string, opts autopost.PublishOptions) (autopost.PostResult, error) {
	return autopost.PostResult{}, errors.New("posting proxy not configured")
}

func (Disabled) Suggest(ctx context.Context, accountID string, limit int, exclude []string) ([]autopost.Target, error) {
	return nil, errors.New("posting proxy not configured")
}
