package llm

import (
	"testing"
)

func TestParseCandidatesWellFormedJSON(t *testing.T) {
	raw := `{"variants":[{"body":"A","label":"casual"},{"body":"B"}]}`
	candidates := ParseCandidates(raw)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Text != "A" || candidates[1].Text != "B" {
		t.Fatalf("unexpected texts: %+v", candidates)
	}
	if candidates[0].Label != "casual" {
		t.Fatalf("expected label casual, got %q", candidates[0].Label)
	}
	if candidates[0].CharCount != 1 {
		t.Fatalf("expected char count 1, got %d", candidates[0].CharCount)
	}
}

func TestParseCandidatesStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"variants\":[{\"body\":\"fenced\"}]}\n```"
	candidates := ParseCandidates(raw)
	if len(candidates) != 1 || candidates[0].Text != "fenced" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestParseCandidatesCapsAtThree(t *testing.T) {
	raw := `{"variants":[{"body":"1"},{"body":"2"},{"body":"3"},{"body":"4"}]}`
	if got := len(ParseCandidates(raw)); got != MaxCandidates {
		t.Fatalf("expected %d candidates, got %d", MaxCandidates, got)
	}
}

func TestParseCandidatesBareNewlinesInStrings(t *testing.T) {
	// A literal newline inside a JSON string value is invalid JSON; the
	// parser must re-escape and retry.
	raw := "{\"variants\":[{\"body\":\"line one\nline two\"}]}"
	candidates := ParseCandidates(raw)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Text != "line one\nline two" {
		t.Fatalf("unexpected text %q", candidates[0].Text)
	}
}

func TestParseCandidatesRegexFallback(t *testing.T) {
	// Trailing garbage makes the document unparseable, but body/label pairs
	// are still recoverable.
	raw := `{"variants":[{"body":"recovered post","label":"formal"},]} trailing junk`
	candidates := ParseCandidates(raw)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Text != "recovered post" || candidates[0].Label != "formal" {
		t.Fatalf("unexpected candidate: %+v", candidates[0])
	}
}

func TestParseCandidatesRegexUnescapes(t *testing.T) {
	raw := `broken { "body": "first\nsecond \"quoted\"" , oops`
	candidates := ParseCandidates(raw)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Text != "first\nsecond \"quoted\"" {
		t.Fatalf("unexpected text %q", candidates[0].Text)
	}
}

func TestParseCandidatesNumberedSegments(t *testing.T) {
	raw := "1. First option here\n2. Second option here\n3. Third option here"
	candidates := ParseCandidates(raw)
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Text != "First option here" {
		t.Fatalf("unexpected first candidate %q", candidates[0].Text)
	}
}

func TestParseCandidatesJapanesePatternLabels(t *testing.T) {
	raw := "パターン1: 「今日も頑張ろう」\nパターン2: 新しい挑戦の話"
	candidates := ParseCandidates(raw)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Text != "今日も頑張ろう" {
		t.Fatalf("expected surrounding quotes stripped, got %q", candidates[0].Text)
	}
	if candidates[1].Label != "パターン2" {
		t.Fatalf("unexpected label %q", candidates[1].Label)
	}
}

func TestParseCandidatesRawTextFallback(t *testing.T) {
	raw := "Just a plain single post with no structure at all."
	candidates := ParseCandidates(raw)
	if len(candidates) != 1 || candidates[0].Text != raw {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestParseCandidatesRejectsTruncatedJSON(t *testing.T) {
	for _, raw := range []string{
		`{"variants":[{"bod`,
		`{"variants":[{"body":`,
		`[{"label": "a"`,
	} {
		if candidates := ParseCandidates(raw); len(candidates) != 0 {
			t.Fatalf("expected zero candidates for %q, got %+v", raw, candidates)
		}
	}
}

func TestParseCandidatesEmptyInput(t *testing.T) {
	if got := ParseCandidates("   \n  "); len(got) != 0 {
		t.Fatalf("expected no candidates for whitespace, got %+v", got)
	}
}

func TestParseCandidatesSkipsEmptyVariants(t *testing.T) {
	raw := `{"variants":[{"body":"  "},{"body":"ok"}]}`
	candidates := ParseCandidates(raw)
	if len(candidates) != 1 || candidates[0].Text != "ok" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestParseCandidatesCountsRunes(t *testing.T) {
	raw := `{"variants":[{"body":"こんにちは"}]}`
	candidates := ParseCandidates(raw)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].CharCount != 5 {
		t.Fatalf("expected 5 runes, got %d", candidates[0].CharCount)
	}
}
