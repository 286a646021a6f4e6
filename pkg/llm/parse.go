package llm

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxCandidates caps how many variants a single call may yield.
const MaxCandidates = 3

var (
	bodyFieldRe  = regexp.MustCompile(`"(?:body|text)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	labelFieldRe = regexp.MustCompile(`"label"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	// Numbered list markers ("1.", "2)") and Japanese pattern labels
	// ("パターン2:", "案3：") at line starts.
	segmentMarkerRe = regexp.MustCompile(`(?m)^\s*(?:\d+\s*[.．)）:：]\s*|(?:パターン|案)\s*\d+\s*[:：]\s*)`)
)

// ParseCandidates turns raw model output into usable post variants. It never
// panics and returns at most MaxCandidates entries. Each stage of the fallback
// pipeline runs only when the previous one produced nothing valid:
//
//  1. strict JSON {"variants":[...]} after stripping markdown fences
//  2. the same, after re-escaping literal newlines inside string values
//  3. regex extraction of "body"/"label" pairs from near-valid JSON
//  4. splitting on numbered or labelled separators
//  5. the raw text itself, unless it looks like a truncated JSON payload
func ParseCandidates(raw string) []Candidate {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	stripped := stripCodeFences(trimmed)

	if candidates := parseVariantsJSON(stripped); len(candidates) > 0 {
		return candidates
	}
	if candidates := parseVariantsJSON(escapeBareNewlines(stripped)); len(candidates) > 0 {
		return candidates
	}
	if candidates := extractFieldPairs(stripped); len(candidates) > 0 {
		return candidates
	}
	if candidates := splitLabeledSegments(trimmed); len(candidates) > 0 {
		return candidates
	}
	if candidate, ok := newCandidate(trimmed, ""); ok {
		return []Candidate{candidate}
	}
	return nil
}

// newCandidate validates one variant. Empty text and anything that still looks
// like a JSON payload are rejected: a truncated generation must never surface
// as a post.
func newCandidate(text, label string) (Candidate, bool) {
	text = strings.TrimSpace(text)
	if text == "" || looksLikeJSONPayload(text) {
		return Candidate{}, false
	}
	return Candidate{
		Text:      text,
		Label:     strings.TrimSpace(label),
		CharCount: utf8.RuneCountInString(text),
	}, true
}

func looksLikeJSONPayload(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return false
	}
	return strings.Contains(s, `"variants"`) ||
		strings.Contains(s, `"body"`) ||
		strings.Contains(s, `"label"`)
}

func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	if j := strings.LastIndex(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

type variantPayload struct {
	Variants []struct {
		Body  string `json:"body"`
		Text  string `json:"text"`
		Label string `json:"label"`
	} `json:"variants"`
}

func parseVariantsJSON(s string) []Candidate {
	var payload variantPayload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil
	}
	candidates := make([]Candidate, 0, MaxCandidates)
	for _, variant := range payload.Variants {
		body := variant.Body
		if body == "" {
			body = variant.Text
		}
		if candidate, ok := newCandidate(body, variant.Label); ok {
			candidates = append(candidates, candidate)
			if len(candidates) == MaxCandidates {
				break
			}
		}
	}
	return candidates
}

// escapeBareNewlines re-escapes literal control characters inside quoted JSON
// string values. Models frequently emit real newlines where \n was meant.
func escapeBareNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\r':
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			}
		} else if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

// extractFieldPairs pulls body/label values straight out of near-valid JSON
// text that json.Unmarshal refused.
func extractFieldPairs(s string) []Candidate {
	bodies := bodyFieldRe.FindAllStringSubmatch(s, MaxCandidates)
	if len(bodies) == 0 {
		return nil
	}
	labels := labelFieldRe.FindAllStringSubmatch(s, MaxCandidates)

	candidates := make([]Candidate, 0, len(bodies))
	for i, match := range bodies {
		label := ""
		if i < len(labels) {
			label = unescapeJSONString(labels[i][1])
		}
		if candidate, ok := newCandidate(unescapeJSONString(match[1]), label); ok {
			candidates = append(candidates, candidate)
			if len(candidates) == MaxCandidates {
				break
			}
		}
	}
	return candidates
}

func unescapeJSONString(s string) string {
	replacer := strings.NewReplacer(
		`\n`, "\n",
		`\t`, "\t",
		`\"`, `"`,
		`\\`, `\`,
	)
	return replacer.Replace(s)
}

// splitLabeledSegments handles plain-text answers enumerated as "1. ..." or
// "パターン2: ...".
func splitLabeledSegments(s string) []Candidate {
	markers := segmentMarkerRe.FindAllStringIndex(s, -1)
	if len(markers) == 0 {
		return nil
	}

	candidates := make([]Candidate, 0, MaxCandidates)
	for i, marker := range markers {
		start := marker[1]
		end := len(s)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		label := strings.TrimSpace(strings.Trim(s[marker[0]:marker[1]], " .．)）:：\t\n"))
		text := stripSurroundingQuotes(strings.TrimSpace(s[start:end]))
		if candidate, ok := newCandidate(text, label); ok {
			candidates = append(candidates, candidate)
			if len(candidates) == MaxCandidates {
				break
			}
		}
	}
	return candidates
}

var quotePairs = [][2]string{
	{"\"", "\""},
	{"“", "”"},
	{"'", "'"},
	{"「", "」"},
	{"『", "』"},
}

func stripSurroundingQuotes(s string) string {
	for _, pair := range quotePairs {
		if strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) && len(s) > len(pair[0])+len(pair[1]) {
			return strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
		}
	}
	return s
}
