package autopost

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/llm"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/logging"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/monitoring"
)

// Config wires the orchestrator's collaborators.
type Config struct {
	Store            Store
	Providers        map[string]llm.Provider
	DefaultProvider  string
	Publisher        Publisher
	Targets          TargetSource
	Logger           logging.Logger
	Metrics          *monitoring.MetricsCollector
	ToleranceMinutes int
	ScheduleEndHour  int // civil hour scheduled posts must not pass, default 23
}

// Orchestrator runs due automations: it matches trigger times against the
// civil clock, generates candidates concurrently, persists them per posting
// mode and records exactly one execution log per pass per configuration.
type Orchestrator struct {
	cfg    Config
	runMu  sync.Mutex
	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("orchestrator requires a store")
	}
	if len(cfg.Providers) == 0 {
		return nil, errors.New("orchestrator requires at least one provider")
	}
	if cfg.DefaultProvider == "" {
		for name := range cfg.Providers {
			cfg.DefaultProvider = name
			break
		}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.ScheduleEndHour <= 0 || cfg.ScheduleEndHour > 23 {
		cfg.ScheduleEndHour = 23
	}
	return &Orchestrator{
		cfg: cfg,
		now: time.Now,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}, nil
}

// RunDue processes every enabled configuration whose next trigger time is due.
// A pass that is still running when the next tick arrives makes the new tick a
// no-op, so a slow slot can never double-execute a trigger.
func (o *Orchestrator) RunDue(ctx context.Context) {
	if !o.runMu.TryLock() {
		o.cfg.Logger.Debug("Previous automation pass still running, skipping tick")
		return
	}
	defer o.runMu.Unlock()

	settings, err := o.cfg.Store.ListEnabledSettings(ctx)
	if err != nil {
		o.cfg.Logger.WithError(err).Error("Failed to load automation settings")
		return
	}

	for _, setting := range settings {
		if ctx.Err() != nil {
			return
		}
		o.processSetting(ctx, setting)
	}
}

// RunManual executes one configuration immediately, bypassing the due check
// and forcing draft mode so a human reviews the output. Manual runs do not
// consume the configuration's trigger times.
func (o *Orchestrator) RunManual(ctx context.Context, settingID string) (ExecutionLog, error) {
	setting, err := o.cfg.Store.GetSetting(ctx, settingID)
	if err != nil {
		return ExecutionLog{}, err
	}

	entry := o.runSlot(ctx, setting, ModeDraft)
	return o.writeLog(ctx, entry), nil
}

func (o *Orchestrator) processSetting(ctx context.Context, setting AutomationSetting) {
	date, clock := CivilNow(o.now())
	executed := setting.ExecutedTimes
	if setting.LastRunDate != date {
		executed = nil
	}

	var dueTime string
	for _, trigger := range setting.TriggerTimes {
		if containsString(executed, trigger) {
			continue
		}
		due, err := IsDue(trigger, clock, o.cfg.ToleranceMinutes)
		if err != nil {
			o.cfg.Logger.WithFields(logrus.Fields{
				"setting_id": setting.ID,
				"trigger":    trigger,
			}).WithError(err).Warn("Skipping malformed trigger time")
			continue
		}
		if due {
			dueTime = trigger
			break
		}
	}
	if dueTime == "" {
		return
	}

	o.cfg.Logger.WithFields(logrus.Fields{
		"setting_id": setting.ID,
		"account_id": setting.AccountID,
		"kind":       setting.Kind,
		"trigger":    dueTime,
	}).Info("Automation trigger due, running slot")

	entry := o.runSlot(ctx, setting, setting.Mode)

	// Commit the idempotency marker before the log so a crash between the
	// two can only lose a log row, never rerun a slot.
	executed = append(executed, dueTime)
	if err := o.cfg.Store.MarkExecuted(ctx, setting.ID, date, executed); err != nil {
		o.cfg.Logger.WithError(err).WithField("setting_id", setting.ID).Error("Failed to commit execution marker")
	}
	o.writeLog(ctx, entry)
}

type workItem struct {
	theme  string
	target *Target
}

func (w workItem) subject() string {
	if w.target != nil {
		if w.target.Handle != "" {
			return fmt.Sprintf("@%s: %s", w.target.Handle, w.target.Text)
		}
		return w.target.Text
	}
	return w.theme
}

func (o *Orchestrator) runSlot(ctx context.Context, setting AutomationSetting, mode PostingMode) ExecutionLog {
	requested := postsForSlot(setting.PostsPerDay, len(setting.TriggerTimes))
	entry := ExecutionLog{SettingID: setting.ID, Requested: requested}

	items, err := o.workItems(ctx, setting, requested)
	if err != nil {
		entry.Status = StatusFailed
		entry.ErrorMessage = err.Error()
		return entry
	}
	if len(items) == 0 {
		entry.Status = StatusFailed
		entry.ErrorMessage = "no targets available"
		return entry
	}

	var failures []string
	if len(items) < requested {
		failures = append(failures, fmt.Sprintf("only %d of %d targets available", len(items), requested))
	}

	// Generate concurrently; each call fails independently so one provider
	// error never starves the rest of the slot.
	texts := make([]string, len(items))
	genErrs := make([]error, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i := range items {
		g.Go(func() error {
			texts[i], genErrs[i] = o.generate(gctx, setting, items[i])
			return nil
		})
	}
	_ = g.Wait()

	var scheduleAt []time.Time
	if mode == ModeScheduled {
		scheduleAt = o.scheduleTimes(len(items))
	}

	// Persist sequentially so scheduled times and log counters stay ordered.
	for i, item := range items {
		if genErrs[i] != nil {
			failures = append(failures, genErrs[i].Error())
			continue
		}
		entry.Generated++

		record := PostRecord{
			SettingID: setting.ID,
			AccountID: setting.AccountID,
			Kind:      setting.Kind,
			Text:      texts[i],
		}
		if item.target != nil {
			record.TargetID = item.target.ID
		}

		switch mode {
		case ModeImmediate:
			result, err := o.cfg.Publisher.Publish(ctx, texts[i], publishOptionsFor(setting.Kind, item))
			if err != nil {
				// Keep the text as a draft instead of dropping it.
				failures = append(failures, translatePublishError(err).Error())
				record.Status = "draft"
			} else {
				entry.Published++
				record.Status = "posted"
				record.ExternalID = result.ID
			}
		case ModeScheduled:
			record.Status = "scheduled"
			record.ScheduledAt = &scheduleAt[i]
		default:
			record.Status = "draft"
		}

		if _, err := o.cfg.Store.SavePost(ctx, record); err != nil {
			failures = append(failures, fmt.Sprintf("persist %s post: %v", record.Status, err))
			continue
		}
		if record.Status == "scheduled" {
			entry.Scheduled++
		}
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.PostsPersisted.WithLabelValues(record.Status).Inc()
		}
	}

	// Status reflects generation against the slot's requested count: a short
	// target pool or a failed call degrades to partial, while a publish that
	// fell back to draft stays a success with the failure in the message.
	entry.ErrorMessage = strings.Join(failures, " | ")
	switch {
	case entry.Generated == 0:
		entry.Status = StatusFailed
	case entry.Generated < entry.Requested:
		entry.Status = StatusPartial
	default:
		entry.Status = StatusSuccess
	}
	return entry
}

func (o *Orchestrator) workItems(ctx context.Context, setting AutomationSetting, count int) ([]workItem, error) {
	if setting.Kind == KindOriginal {
		if len(setting.Themes) == 0 {
			return nil, fmt.Errorf("no themes configured for setting %s", setting.ID)
		}
		items := make([]workItem, count)
		for i := range items {
			items[i] = workItem{theme: setting.Themes[i%len(setting.Themes)]}
		}
		return items, nil
	}

	if o.cfg.Targets == nil {
		return nil, errors.New("target source not configured")
	}
	engaged, err := o.cfg.Store.ListEngagedTargetIDs(ctx, setting.AccountID)
	if err != nil {
		return nil, fmt.Errorf("list engaged targets: %w", err)
	}
	targets, err := o.cfg.Targets.Suggest(ctx, setting.AccountID, count, engaged)
	if err != nil {
		return nil, fmt.Errorf("suggest targets: %w", err)
	}
	if len(targets) > count {
		targets = targets[:count]
	}
	items := make([]workItem, 0, len(targets))
	for i := range targets {
		items = append(items, workItem{target: &targets[i]})
	}
	return items, nil
}

func (o *Orchestrator) generate(ctx context.Context, setting AutomationSetting, item workItem) (string, error) {
	provider, err := o.providerFor(setting)
	if err != nil {
		return "", err
	}

	req := llm.Request{
		Task:      setting.Task(),
		Theme:     item.subject(),
		Model:     setting.Model,
		MaxLength: setting.MaxLength,
		Tone:      setting.Tone,
		Audience:  setting.Audience,
		Note:      setting.Note,
	}

	start := time.Now()
	outcome, err := provider.Generate(ctx, req)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.GenerationDuration.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())
		o.cfg.Metrics.GenerationCalls.WithLabelValues(provider.Name(), outcomeLabel(outcome, err)).Inc()
	}
	if err != nil {
		return "", err
	}
	if len(outcome.Candidates) == 0 {
		return "", fmt.Errorf("%w: %s", llm.ErrMalformedResponse, outcome.Diagnostic)
	}
	return outcome.Candidates[0].Text, nil
}

func (o *Orchestrator) providerFor(setting AutomationSetting) (llm.Provider, error) {
	name := setting.Provider
	if name == "" {
		name = o.cfg.DefaultProvider
	}
	provider, ok := o.cfg.Providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q not configured", llm.ErrConfiguration, name)
	}
	return provider, nil
}

// scheduleTimes spreads count posts between one hour from now and the end
// hour of the same civil day, with random jitter inside each interval.
func (o *Orchestrator) scheduleTimes(count int) []time.Time {
	now := o.now().In(civilZone)
	start := now.Add(time.Hour)
	end := time.Date(now.Year(), now.Month(), now.Day(), o.cfg.ScheduleEndHour, 0, 0, 0, civilZone)
	if !end.After(start) {
		end = start.Add(time.Hour)
	}

	step := end.Sub(start) / time.Duration(count)
	times := make([]time.Time, count)
	for i := range times {
		times[i] = start.Add(step*time.Duration(i) + o.jitter(step/4))
	}
	return times
}

func (o *Orchestrator) writeLog(ctx context.Context, entry ExecutionLog) ExecutionLog {
	saved, err := o.cfg.Store.SaveExecutionLog(ctx, entry)
	if err != nil {
		o.cfg.Logger.WithError(err).WithField("setting_id", entry.SettingID).Error("Failed to write execution log")
		return entry
	}
	o.cfg.Logger.WithFields(logrus.Fields{
		"setting_id": entry.SettingID,
		"status":     entry.Status,
		"generated":  entry.Generated,
		"scheduled":  entry.Scheduled,
		"published":  entry.Published,
	}).Info("Automation slot finished")
	return saved
}

func publishOptionsFor(kind ContentKind, item workItem) PublishOptions {
	if item.target == nil {
		return PublishOptions{}
	}
	switch kind {
	case KindReply:
		return PublishOptions{ReplyToID: item.target.ID}
	case KindQuote:
		return PublishOptions{QuoteID: item.target.ID}
	default:
		return PublishOptions{}
	}
}

// postsForSlot divides the daily quota across trigger times, rounding up so
// the day's total is never short.
func postsForSlot(postsPerDay, slots int) int {
	if postsPerDay < 1 {
		postsPerDay = 1
	}
	if slots < 1 {
		slots = 1
	}
	return (postsPerDay + slots - 1) / slots
}

func outcomeLabel(outcome *llm.Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case outcome == nil || len(outcome.Candidates) == 0:
		return "empty"
	default:
		return "ok"
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
