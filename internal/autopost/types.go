package autopost

import (
	"time"

	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/llm"
)

// ContentKind selects what an automation produces.
type ContentKind string

const (
	KindOriginal ContentKind = "original"
	KindReply    ContentKind = "reply"
	KindQuote    ContentKind = "quote"
)

// PostingMode decides what happens to an accepted candidate.
type PostingMode string

const (
	ModeImmediate PostingMode = "immediate"
	ModeScheduled PostingMode = "scheduled"
	ModeDraft     PostingMode = "draft"
)

// RunStatus summarizes one orchestrator pass for one setting.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

// AutomationSetting is one automation configuration: one row per
// (account, content kind).
type AutomationSetting struct {
	ID           string
	AccountID    string
	Kind         ContentKind
	Enabled      bool
	TriggerTimes []string // "HH:MM", unique, ordered
	PostsPerDay  int
	Mode         PostingMode
	Themes       []string // original posts only
	Tone         string
	Audience     string
	Note         string
	MaxLength    int
	Provider     string // preferred backend, empty = service default
	Model        string // preferred model, empty = provider default

	// Idempotency state: trigger times already executed on LastRunDate.
	// The set resets whenever the civil date changes; a trigger time runs
	// at most once per civil date.
	LastRunDate   string
	ExecutedTimes []string
}

// Task maps the content kind onto the generation task.
func (s AutomationSetting) Task() llm.Task {
	switch s.Kind {
	case KindReply:
		return llm.TaskReply
	case KindQuote:
		return llm.TaskQuote
	default:
		return llm.TaskPost
	}
}

// ExecutionLog is the append-only outcome record, one row per orchestrator
// pass per configuration.
type ExecutionLog struct {
	ID           string
	SettingID    string
	Requested    int
	Generated    int
	Scheduled    int
	Published    int
	Status       RunStatus
	ErrorMessage string // pipe-joined per-call errors, empty persists as NULL
	CreatedAt    time.Time
}

// PostRecord is a generated post in any lifecycle stage.
type PostRecord struct {
	ID          string
	SettingID   string
	AccountID   string
	Kind        ContentKind
	Text        string
	Status      string // draft | scheduled | posted
	TargetID    string // replied-to or quoted post, reply/quote kinds only
	ScheduledAt *time.Time
	ExternalID  string // platform id once published
	CreatedAt   time.Time
}

// Target is a candidate post to reply to or quote.
type Target struct {
	ID     string
	Text   string
	Handle string
}

// PostResult identifies a published post on the platform.
type PostResult struct {
	ID string
}
