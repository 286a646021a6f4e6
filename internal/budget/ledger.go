package budget

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/llm"
	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/logging"
)

// Ledger buffers per-call token usage and periodically flushes aggregated
// rows into the usage table the Guard reads. It implements llm.UsageRecorder.
type Ledger struct {
	db            *sql.DB
	logger        logging.Logger
	flushInterval time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}
	doneCh        chan struct{}
	mu            sync.Mutex
	entries       map[ledgerKey]*ledgerEntry
}

type ledgerKey struct {
	provider string
	model    string
	task     llm.Task
}

type ledgerEntry struct {
	calls            int
	inputTokens      int
	outputTokens     int
	cacheReadTokens  int
	cacheWriteTokens int
	costUSD          float64
}

// LedgerConfig configures the usage ledger.
type LedgerConfig struct {
	DB            *sql.DB
	Logger        logging.Logger
	FlushInterval time.Duration
}

// NewLedger creates a usage ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	return &Ledger{
		db:            cfg.DB,
		logger:        cfg.Logger,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		entries:       make(map[ledgerKey]*ledgerEntry),
	}
}

// RecordGeneration buffers one call's usage. Safe for concurrent use.
func (l *Ledger) RecordGeneration(provider, model string, task llm.Task, usage llm.Usage, costUSD float64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{provider: provider, model: model, task: task}
	entry, ok := l.entries[key]
	if !ok {
		entry = &ledgerEntry{}
		l.entries[key] = entry
	}
	entry.calls++
	entry.inputTokens += usage.InputTokens
	entry.outputTokens += usage.OutputTokens
	entry.cacheReadTokens += usage.CacheReadTokens
	entry.cacheWriteTokens += usage.CacheWriteTokens
	entry.costUSD += costUSD
}

// Start launches the periodic flush loop.
func (l *Ledger) Start() {
	if l == nil {
		return
	}
	go l.loop()
}

// Stop flushes remaining usage and stops the loop.
func (l *Ledger) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.doneCh
}

func (l *Ledger) loop() {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Flush(context.Background())
		case <-l.stopCh:
			l.Flush(context.Background())
			return
		}
	}
}

// Flush persists buffered usage. Entries that fail to insert are re-queued
// for the next flush rather than dropped.
func (l *Ledger) Flush(ctx context.Context) {
	if l == nil || l.db == nil {
		return
	}

	l.mu.Lock()
	if len(l.entries) == 0 {
		l.mu.Unlock()
		return
	}
	snapshot := l.entries
	l.entries = make(map[ledgerKey]*ledgerEntry)
	l.mu.Unlock()

	for key, entry := range snapshot {
		if entry.calls == 0 {
			continue
		}
		if err := l.insertRow(ctx, key, entry); err != nil {
			l.requeue(key, entry)
		}
	}
}

func (l *Ledger) insertRow(ctx context.Context, key ledgerKey, entry *ledgerEntry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO autopilot_usage (
			provider,
			model,
			task,
			calls,
			tokens_input,
			tokens_output,
			tokens_cache_read,
			tokens_cache_write,
			cost_usd,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`,
		key.provider,
		key.model,
		string(key.task),
		entry.calls,
		entry.inputTokens,
		entry.outputTokens,
		entry.cacheReadTokens,
		entry.cacheWriteTokens,
		entry.costUSD,
	)
	if err != nil && l.logger != nil {
		l.logger.WithError(err).WithFields(logging.Fields{
			"provider": key.provider,
			"model":    key.model,
			"task":     string(key.task),
		}).Warn("Failed to persist usage row")
	}
	return err
}

func (l *Ledger) requeue(key ledgerKey, entry *ledgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.entries[key]
	if !ok {
		current = &ledgerEntry{}
		l.entries[key] = current
	}
	current.calls += entry.calls
	current.inputTokens += entry.inputTokens
	current.outputTokens += entry.outputTokens
	current.cacheReadTokens += entry.cacheReadTokens
	current.cacheWriteTokens += entry.cacheWriteTokens
	current.costUSD += entry.costUSD
}
