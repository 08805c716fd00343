// Package relevance ranks frame captions against a question.
package relevance

import (
	"regexp"
	"sort"
	"strings"

	"github.com/chewxy/math32"
)

var (
	reWord    = regexp.MustCompile(`[a-z0-9]+`)
	reSpatial = regexp.MustCompile(`\b(left|right|above|below|behind|front|beside|next|near|far|under|over|between|top|bottom|inside|outside|on|corner|center|middle)\b`)
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true, "were": true,
	"of": true, "to": true, "in": true, "and": true, "or": true, "what": true, "which": true,
	"where": true, "who": true, "how": true, "does": true, "do": true, "did": true, "it": true,
	"this": true, "that": true, "with": true, "for": true, "at": true, "by": true, "from": true,
	"be": true, "as": true, "video": true, "frame": true, "person": true,
}

// Score returns a lexical relevance of caption to question in range [0..10].
func Score(question, caption string) float64 {
	q := terms(question)
	if len(q) == 0 || strings.TrimSpace(caption) == "" {
		return 0
	}
	c := terms(caption)

	hits := 0
	for w := range q {
		if c[w] {
			hits++
		}
	}
	s := 8 * float64(hits) / float64(len(q))

	// spatial questions favour captions that describe layout
	lowerQ := strings.ToLower(question)
	if reSpatial.MatchString(lowerQ) {
		s += 0.25 * float64(len(reSpatial.FindAllStringIndex(strings.ToLower(caption), -1)))
	}
	return clamp(s, 0, 10)
}

func terms(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range reWord.FindAllString(strings.ToLower(s), -1) {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		out[strings.TrimSuffix(w, "s")] = true
	}
	return out
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero or
// their lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math32.Sqrt(na) * math32.Sqrt(nb))
}

// TopK returns the indices of the k highest scores, best first. Ties keep
// the lower index first.
func TopK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return scores[idx[i]] > scores[idx[j]] })
	if k >= 0 && k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

func clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}
