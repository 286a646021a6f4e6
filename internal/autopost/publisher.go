package autopost

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PublishOptions carries the target linkage for replies and quotes.
type PublishOptions struct {
	ReplyToID string
	QuoteID   string
}

// Publisher posts text to the social platform immediately.
type Publisher interface {
	Publish(ctx context.Context, text string, opts PublishOptions) (PostResult, error)
}

// TargetSource suggests posts worth engaging with for an account. Implementations
// must not return ids present in exclude.
type TargetSource interface {
	Suggest(ctx context.Context, accountID string, limit int, exclude []string) ([]Target, error)
}

// noopPublisher stands in when no publisher is wired, so immediate-mode slots
// degrade to drafts instead of dereferencing nil.
type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, text string, opts PublishOptions) (PostResult, error) {
	return PostResult{}, errors.New("publisher not configured")
}

// translatePublishError rewrites common platform failures into messages that
// make sense in an execution log.
func translatePublishError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "deleted or not visible"):
		return fmt.Errorf("target post no longer available: %w", err)
	case strings.Contains(msg, "duplicate content"), strings.Contains(msg, "187"):
		return fmt.Errorf("platform rejected duplicate post: %w", err)
	case strings.Contains(msg, "429"), strings.Contains(msg, "Too Many Requests"):
		return fmt.Errorf("platform rate limit hit: %w", err)
	default:
		return fmt.Errorf("publish failed: %w", err)
	}
}
