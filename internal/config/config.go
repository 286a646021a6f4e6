package config

import (
	"strings"
	"time"

	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/config"
)

// Config stores environment configuration for the autopilot service.
type Config struct {
	Port        string
	DatabaseURL string

	LLMProvider  string
	LLMModel     string
	LLMMaxTokens int
	LLMEffort    string
	LLMTimeout   time.Duration

	ClaudeAPIKey string
	ClaudeAPIURL string
	GeminiAPIKey string
	GeminiAPIURL string

	MonthlyBudgetUSD float64
	BudgetPause      bool

	ToleranceMinutes int
	ScheduleEndHour  int
	PostMaxLength    int

	// Posting proxy: a narrow external service that signs and submits
	// platform requests and serves engagement target suggestions.
	PlatformAPIURL   string
	PlatformAPIToken string
	PlatformTimeout  time.Duration
}

// LoadConfig loads the autopilot configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:        config.GetEnv("PORT", "18080"),
		DatabaseURL: config.RequireEnv("DATABASE_URL"),

		LLMProvider:  config.GetEnv("LLM_PROVIDER", "claude"),
		LLMModel:     config.GetEnv("LLM_MODEL", ""),
		LLMMaxTokens: config.GetEnvInt("LLM_MAX_TOKENS", 0),
		LLMEffort:    config.GetEnv("LLM_EFFORT", ""),
		LLMTimeout:   config.GetEnvDuration("LLM_TIMEOUT", 90*time.Second),

		ClaudeAPIKey: config.GetEnv("CLAUDE_API_KEY", config.GetEnv("ANTHROPIC_API_KEY", "")),
		ClaudeAPIURL: config.GetEnv("CLAUDE_API_URL", ""),
		GeminiAPIKey: config.GetEnv("GEMINI_API_KEY", ""),
		GeminiAPIURL: config.GetEnv("GEMINI_API_URL", ""),

		MonthlyBudgetUSD: config.GetEnvFloat("MONTHLY_BUDGET_USD", 0),
		BudgetPause:      config.GetEnvBool("BUDGET_PAUSE", true),

		ToleranceMinutes: config.GetEnvInt("TRIGGER_TOLERANCE_MINUTES", 5),
		ScheduleEndHour:  config.GetEnvInt("SCHEDULE_END_HOUR", 23),
		PostMaxLength:    config.GetEnvInt("POST_MAX_LENGTH", 140),

		PlatformAPIURL:   config.GetEnv("PLATFORM_API_URL", ""),
		PlatformAPIToken: config.GetEnv("PLATFORM_API_TOKEN", ""),
		PlatformTimeout:  config.GetEnvDuration("PLATFORM_TIMEOUT", 15*time.Second),
	}
}

// Providers returns the backends with credentials configured, default first.
func (c Config) Providers() []string {
	var names []string
	if c.ClaudeAPIKey != "" {
		names = append(names, "claude")
	}
	if c.GeminiAPIKey != "" {
		names = append(names, "gemini")
	}
	def := strings.ToLower(c.LLMProvider)
	for i, name := range names {
		if name == def && i != 0 {
			names[0], names[i] = names[i], names[0]
		}
	}
	return names
}
