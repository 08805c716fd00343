// Package dataset loads multiple-choice question sets.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/forPelevin/vidqa/internal/types"
)

var (
	reChoiceMark = regexp.MustCompile(`(?m)(?:^|\s)([A-E])\.\s*`)
	reInlineMark = regexp.MustCompile(`(?:^|\s)\(?([A-E])\)\s*`)
)

// LoadCSV reads questions from a CSV file. Choices come either from an
// "mcq_test" column holding "A. ... B. ..." text or from answer_1..answer_5
// columns, in which case answer_1 is the correct one. A
// "correct_answer_label" column, when present, names the correct letter.
// Rows without choices are skipped.
func LoadCSV(path string) ([]types.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	qs, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return qs, nil
}

func Read(r io.Reader) ([]types.Question, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv")
		}
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := col["question"]; !ok {
		return nil, errors.New(`missing "question" column`)
	}

	var out []types.Question
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		q := types.Question{
			QID:      get("qid"),
			Question: get("question"),
			Task:     get("task"),
			VideoUID: get("video_uid"),
			Gold:     -1,
		}
		if q.QID == "" {
			q.QID = strconv.Itoa(row)
		}

		if _, ok := col["mcq_test"]; ok {
			q.Choices = ParseChoices(get("mcq_test"))
		} else {
			for i := 1; i <= 5; i++ {
				if c := get("answer_" + strconv.Itoa(i)); c != "" && !strings.EqualFold(c, "nan") {
					q.Choices = append(q.Choices, c)
				}
			}
			if len(q.Choices) > 0 {
				q.Gold = 0
			}
		}
		if lbl := strings.ToUpper(get("correct_answer_label")); len(lbl) >= 1 {
			if idx := int(lbl[0] - 'A'); idx >= 0 && idx < len(q.Choices) {
				q.Gold = idx
			}
		}
		if q.Question == "" || len(q.Choices) == 0 {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// ParseChoices splits "A. first\nB. second" (or the same on one line) into
// the choice texts.
func ParseChoices(s string) []string {
	return splitAtMarks(s, reChoiceMark)
}

func splitAtMarks(s string, re *regexp.Regexp) []string {
	locs := re.FindAllStringSubmatchIndex(s, -1)
	var out []string
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if c := strings.TrimSpace(s[loc[1]:end]); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// ParseInline reads a question typed as "question? A) first B) second".
// ok is false when the text carries no lettered choices.
func ParseInline(s string) (types.Question, bool) {
	s = strings.TrimSpace(s)
	head, tail, found := strings.Cut(s, "?")
	if !found {
		return types.Question{}, false
	}
	choices := splitAtMarks(tail, reInlineMark)
	if len(choices) == 0 {
		return types.Question{}, false
	}
	return types.Question{Question: strings.TrimSpace(head) + "?", Choices: choices, Gold: -1}, true
}

// Sample keeps every nth question starting with the first.
func Sample(qs []types.Question, every int) []types.Question {
	if every <= 1 {
		return qs
	}
	out := make([]types.Question, 0, (len(qs)+every-1)/every)
	for i := 0; i < len(qs); i += every {
		out = append(out, qs[i])
	}
	return out
}
