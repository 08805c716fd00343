// Package actions recovers structured decisions from free-text model replies.
package actions

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/forPelevin/vidqa/internal/types"
)

const (
	markFinal    = "FINAL_ANSWER:"
	markSelector = "FRAME_SELECTOR:"
	markVLM      = "VLM:"
	markContinue = "CONTINUE:"
)

// NoAnswer is returned by ParseMCQAnswer when the reply names no answer.
const NoAnswer = "No answer found"

// Parse picks the single action of a coordinator reply. A final answer
// anywhere in the text wins; otherwise the first matching marker in the order
// FRAME_SELECTOR, VLM, CONTINUE decides.
func Parse(response string) types.Action {
	switch {
	case strings.Contains(response, markFinal):
		return types.Action{Kind: types.ActionFinalAnswer, Body: after(response, markFinal, markFinal)}
	case strings.Contains(response, markSelector):
		return types.Action{Kind: types.ActionFrameSelector, Body: after(response, markSelector, markSelector, markVLM, markContinue)}
	case strings.Contains(response, markVLM):
		return types.Action{Kind: types.ActionVLM, Body: after(response, markVLM, markVLM, markContinue)}
	case strings.Contains(response, markContinue):
		return types.Action{Kind: types.ActionContinue, Body: after(response, markContinue, markContinue)}
	default:
		return types.Action{Kind: types.ActionUnknown, Body: strings.TrimSpace(response)}
	}
}

// FinalAnswer returns the text after FINAL_ANSWER: and whether the marker was present.
func FinalAnswer(response string) (string, bool) {
	if !strings.Contains(response, markFinal) {
		return "", false
	}
	return after(response, markFinal, markFinal), true
}

// after returns the text following the first marker, cut at the first of stops.
func after(s, marker string, stops ...string) string {
	i := strings.Index(s, marker)
	if i < 0 {
		return ""
	}
	body := s[i+len(marker):]
	for _, stop := range stops {
		if j := strings.Index(body, stop); j >= 0 {
			body = body[:j]
		}
	}
	return strings.TrimSpace(body)
}

// SelectionRule controls how a frame list is read from a selector reply.
type SelectionRule struct {
	Marker string
	// Limit caps the number of returned frames when > 0.
	Limit int
	// ScanNumbers falls back to any in-range number in the reply when the
	// marker line yields nothing.
	ScanNumbers bool
}

var (
	reNumber   = regexp.MustCompile(`\b(\d+)\b`)
	reBrackets = strings.NewReplacer("[", "", "]", "", "(", "", ")", "")
)

// ParseFrameSelection returns 0-based frame indices picked by a selector
// reply that numbers frames from 1. When nothing valid is found the first
// min(3,total) frames are returned.
func ParseFrameSelection(response string, total int, rule SelectionRule) []int {
	if total <= 0 {
		return nil
	}

	var out []int
	if line, ok := markerLine(response, rule.Marker); ok {
		out = collect(strings.Split(reBrackets.Replace(line), ","), total, rule.Limit)
	}
	if len(out) == 0 && rule.ScanNumbers {
		limit := rule.Limit
		if limit <= 0 {
			limit = 5
		}
		out = collect(reNumber.FindAllString(response, -1), total, limit)
	}
	if len(out) == 0 {
		for i := 0; i < min(3, total); i++ {
			out = append(out, i)
		}
	}
	if rule.Limit > 0 && len(out) > rule.Limit {
		out = out[:rule.Limit]
	}
	return out
}

// markerLine returns the first non-empty line after a case-insensitive marker.
func markerLine(s, marker string) (string, bool) {
	if marker == "" {
		return "", false
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker))
	loc := re.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	for _, line := range strings.Split(s[loc[1]:], "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, true
		}
	}
	return "", false
}

func collect(tokens []string, total, limit int) []int {
	seen := map[int]bool{}
	var out []int
	for _, tok := range tokens {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || n < 1 || n > total || seen[n-1] {
			continue
		}
		seen[n-1] = true
		out = append(out, n-1)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// ParseMCQAnswer returns the text after "The correct answer is:".
func ParseMCQAnswer(response string) string {
	i := strings.LastIndex(response, "The correct answer is:")
	if i < 0 {
		return NoAnswer
	}
	ans := strings.TrimSpace(response[i+len("The correct answer is:"):])
	if ans == "" {
		return NoAnswer
	}
	return ans
}

var reLeadingLetter = regexp.MustCompile(`(?i)^(?:\*\*)?(?:answer\s*[:\-]?\s*)?(?:option\s+)?[\[\(]?([A-Z])[\]\)]?(?:[\.\):,\s*]|$)`)

// AnswerIndex reads the choice letter an answer starts with ("A", "A.",
// "(B)", "[C]", "Answer: D") and returns its index, or -1.
func AnswerIndex(answer string, nChoices int) int {
	s := strings.TrimSpace(answer)
	m := reLeadingLetter.FindStringSubmatchIndex(s)
	if m == nil {
		return -1
	}
	letter := rune(s[m[2]])
	// A lowercase letter only counts when punctuated, so "a chair" is not A.
	if unicode.IsLower(letter) {
		rest := s[m[3]:]
		if rest != "" && !strings.ContainsAny(rest[:1], ".):]") {
			return -1
		}
	}
	idx := int(unicode.ToUpper(letter) - 'A')
	if idx < 0 || idx >= nChoices {
		return -1
	}
	return idx
}

// MatchChoice resolves an answer to a choice index by letter first, then by
// the choice text appearing in the answer.
func MatchChoice(answer string, choices []string) int {
	if idx := AnswerIndex(answer, len(choices)); idx >= 0 {
		return idx
	}
	lower := strings.ToLower(answer)
	best, bestLen := -1, 0
	for i, c := range choices {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if strings.Contains(lower, c) && len(c) > bestLen {
			best, bestLen = i, len(c)
		}
	}
	return best
}
