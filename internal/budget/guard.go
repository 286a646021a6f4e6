package budget

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Alert levels reported by Status.
const (
	AlertNone     = "none"
	AlertNotice   = "notice"   // >= 50% of the monthly ceiling
	AlertWarning  = "warning"  // >= 80%
	AlertCritical = "critical" // >= 100%, generation pauses
)

// Status summarizes current-month spend against the configured ceiling.
type Status struct {
	TotalSpendUSD float64 `json:"total_spend_usd"`
	BudgetUSD     float64 `json:"budget_usd"`
	UsedPercent   float64 `json:"used_percent"`
	AlertLevel    string  `json:"alert_level"`
	ShouldPause   bool    `json:"should_pause"`
}

// Guard aggregates the rolling current-month cost ledger against a configured
// ceiling. It implements llm.BudgetGate: at 100% usage generation stops.
type Guard struct {
	db        *sql.DB
	budgetUSD float64
	cacheTTL  time.Duration

	mu       sync.Mutex
	cached   Status
	cachedAt time.Time
}

// GuardConfig configures a Guard.
type GuardConfig struct {
	DB        *sql.DB
	BudgetUSD float64
	// CacheTTL bounds how often the spend query hits the database; the gate
	// runs before every generation call.
	CacheTTL time.Duration
}

// NewGuard creates a budget guard.
func NewGuard(cfg GuardConfig) *Guard {
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Guard{
		db:        cfg.DB,
		budgetUSD: cfg.BudgetUSD,
		cacheTTL:  cacheTTL,
	}
}

// Status returns the current monthly spend status.
func (g *Guard) Status(ctx context.Context) (Status, error) {
	g.mu.Lock()
	if time.Since(g.cachedAt) < g.cacheTTL {
		status := g.cached
		g.mu.Unlock()
		return status, nil
	}
	g.mu.Unlock()

	var spend float64
	err := g.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM autopilot_usage
		WHERE created_at >= date_trunc('month', NOW())
	`).Scan(&spend)
	if err != nil {
		return Status{}, fmt.Errorf("query monthly spend: %w", err)
	}

	status := Status{
		TotalSpendUSD: spend,
		BudgetUSD:     g.budgetUSD,
	}
	if g.budgetUSD > 0 {
		status.UsedPercent = spend / g.budgetUSD * 100
	}
	status.AlertLevel = alertLevelFor(status.UsedPercent)
	status.ShouldPause = status.UsedPercent >= 100

	g.mu.Lock()
	g.cached = status
	g.cachedAt = time.Now()
	g.mu.Unlock()

	return status, nil
}

// ShouldPause implements llm.BudgetGate.
func (g *Guard) ShouldPause(ctx context.Context) (bool, error) {
	status, err := g.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.ShouldPause, nil
}

func alertLevelFor(usedPercent float64) string {
	switch {
	case usedPercent >= 100:
		return AlertCritical
	case usedPercent >= 80:
		return AlertWarning
	case usedPercent >= 50:
		return AlertNotice
	default:
		return AlertNone
	}
}
