package llm

import (
	"math"
	"testing"
)

func TestEstimateCostKnownModel(t *testing.T) {
	pricer := TablePricer{}
	usage := Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	got := pricer.EstimateCost(usage, "claude-sonnet-4-5-20250929", false)
	want := 3.0 + 15.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEstimateCostBatchDiscount(t *testing.T) {
	pricer := TablePricer{}
	usage := Usage{InputTokens: 2_000_000}

	full := pricer.EstimateCost(usage, "gemini-2.5-flash", false)
	batch := pricer.EstimateCost(usage, "gemini-2.5-flash", true)
	if math.Abs(batch-full/2) > 1e-9 {
		t.Fatalf("expected half price for batch, got %v vs %v", batch, full)
	}
}

func TestEstimateCostUnknownModelUsesCeilingRate(t *testing.T) {
	pricer := TablePricer{}
	usage := Usage{OutputTokens: 1_000_000}

	got := pricer.EstimateCost(usage, "mystery-model", false)
	if got != defaultRate.output {
		t.Fatalf("expected ceiling rate %v, got %v", defaultRate.output, got)
	}
}

func TestEstimateCostCacheTokens(t *testing.T) {
	pricer := TablePricer{}
	usage := Usage{CacheReadTokens: 1_000_000, CacheWriteTokens: 1_000_000}

	got := pricer.EstimateCost(usage, "claude-sonnet-4-5", false)
	want := 0.3 + 3.75
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
