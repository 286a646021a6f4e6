package llm

import "strings"

// modelRate holds USD prices per million tokens.
type modelRate struct {
	input      float64
	output     float64
	cacheRead  float64
	cacheWrite float64
}

// Published per-MTok list prices. Matched by model name prefix so dated
// snapshots ("claude-sonnet-4-5-20250929") resolve to their family.
var modelRates = map[string]modelRate{
	"claude-opus-4":    {input: 15, output: 75, cacheRead: 1.5, cacheWrite: 18.75},
	"claude-sonnet-4":  {input: 3, output: 15, cacheRead: 0.3, cacheWrite: 3.75},
	"claude-haiku-4":   {input: 1, output: 5, cacheRead: 0.1, cacheWrite: 1.25},
	"claude-3-5-haiku": {input: 0.8, output: 4, cacheRead: 0.08, cacheWrite: 1},
	"gemini-2.5-pro":   {input: 1.25, output: 10, cacheRead: 0.31, cacheWrite: 1.625},
	"gemini-2.5-flash": {input: 0.3, output: 2.5, cacheRead: 0.075, cacheWrite: 0.3833},
	"gemini-2.0-flash": {input: 0.1, output: 0.4, cacheRead: 0.025, cacheWrite: 0.1},
}

// Fallback when a model is unknown; priced at the most expensive family so an
// unknown model never under-counts spend.
var defaultRate = modelRate{input: 15, output: 75, cacheRead: 1.5, cacheWrite: 18.75}

const batchDiscount = 0.5

// TablePricer estimates call cost from the static rate table.
type TablePricer struct{}

// EstimateCost returns the estimated USD cost for the given usage.
func (TablePricer) EstimateCost(usage Usage, model string, batch bool) float64 {
	rate := rateFor(model)
	cost := float64(usage.InputTokens)*rate.input/1e6 +
		float64(usage.OutputTokens)*rate.output/1e6 +
		float64(usage.CacheReadTokens)*rate.cacheRead/1e6 +
		float64(usage.CacheWriteTokens)*rate.cacheWrite/1e6
	if batch {
		cost *= batchDiscount
	}
	return cost
}

func rateFor(model string) modelRate {
	model = strings.ToLower(model)
	for prefix, rate := range modelRates {
		if strings.HasPrefix(model, prefix) {
			return rate
		}
	}
	return defaultRate
}
