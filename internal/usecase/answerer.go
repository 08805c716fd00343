package usecase

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/vidqa/internal/domain/actions"
	"github.com/forPelevin/vidqa/internal/domain/prompts"
	"github.com/forPelevin/vidqa/internal/domain/relevance"
	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/types"
)

// AnswerWithCaptions answers a multiple-choice question in one call from the
// given frame captions.
func (u Usecase) AnswerWithCaptions(ctx context.Context, q types.Question, caps []types.FrameCaption) (types.Result, error) {
	start := time.Now()
	res := types.Result{QID: q.QID, Task: q.Task, Question: q.Question, Choices: q.Choices, AnswerIndex: -1, SelectedFrames: caps}

	resp, err := u.chat(ctx, u.cfg.Models.LLM, []types.Message{types.UserText(prompts.MCQ(q.Question, q.Choices, prompts.CaptionLines(caps)))})
	if err != nil {
		return res, fmt.Errorf("mcq answer: %w", err)
	}
	u.record("MCQ_ANSWERER", "RESPONSE", resp)

	res.Answer = actions.ParseMCQAnswer(resp)
	if res.Answer != actions.NoAnswer {
		res.AnswerIndex = actions.MatchChoice(res.Answer, q.Choices)
	}
	res.Reasoning = resp
	res.Iterations = 1
	res.Duration = time.Since(start)
	res.ProcessingSeconds = res.Duration.Seconds()
	return res, nil
}

// KeyFrames returns the k captions most related to the question, best
// first. Embedding similarity is used when an embedder is configured,
// lexical overlap otherwise.
func (u Usecase) KeyFrames(ctx context.Context, question string, caps []types.FrameCaption, k int) ([]types.FrameCaption, error) {
	if len(caps) == 0 || k <= 0 {
		return nil, nil
	}
	scores := make([]float64, len(caps))
	if u.d.Embed != nil {
		texts := make([]string, 0, len(caps)+1)
		texts = append(texts, question)
		for _, c := range caps {
			texts = append(texts, string(c.Captions))
		}
		var vecs [][]float32
		err := withRetry(ctx, u.cfg.MaxRetries, u.cfg.RetryDelay, func() error {
			var err error
			vecs, err = u.d.Embed.Embed(ctx, texts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("embed captions: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed captions: got %d vectors for %d texts", len(vecs), len(texts))
		}
		for i := range caps {
			scores[i] = float64(relevance.Cosine(vecs[0], vecs[i+1]))
		}
	} else {
		for i, c := range caps {
			scores[i] = relevance.Score(question, string(c.Captions))
		}
	}

	idx := relevance.TopK(scores, k)
	out := make([]types.FrameCaption, len(idx))
	for i, j := range idx {
		out[i] = caps[j]
	}
	return out, nil
}

// SelectWithLLM lets the selector model pick at most maxFrames key frames.
// When the call fails the first maxFrames captions are returned.
func (u Usecase) SelectWithLLM(ctx context.Context, q types.Question, caps []types.FrameCaption, maxFrames int) []types.FrameCaption {
	if maxFrames <= 0 {
		maxFrames = 5
	}
	resp, err := u.chat(ctx, u.cfg.Models.Selector, []types.Message{types.UserText(prompts.KeyFrameSelection(caps, q.Question, q.Choices, maxFrames))})
	if err != nil {
		logger := logging.WithComponent("selector")
		logger.Warn().Err(err).Msg("frame selection failed, using first frames")
		return caps[:min(maxFrames, len(caps))]
	}
	u.record("FRAME_SELECTOR", "SELECTION_RESPONSE", resp)

	idx := actions.ParseFrameSelection(resp, len(caps), actions.SelectionRule{
		Marker:      prompts.KeyFrameMarker,
		Limit:       min(maxFrames, 5),
		ScanNumbers: true,
	})
	out := make([]types.FrameCaption, len(idx))
	for i, j := range idx {
		out[i] = caps[j]
	}
	return out
}

// Enhanced finds the k key frames, recaptions them with a prompt focused on
// the question and answers from those captions.
func (u Usecase) Enhanced(ctx context.Context, q types.Question, caps []types.FrameCaption, k int) (types.Result, error) {
	key, err := u.KeyFrames(ctx, q.Question, caps, k)
	if err != nil {
		return types.Result{QID: q.QID, Task: q.Task, Question: q.Question, Choices: q.Choices, AnswerIndex: -1}, err
	}

	prompt := prompts.Recaption(q.Question, q.Choices)
	logger := logging.WithComponent("recaption")
	var enhanced []types.FrameCaption
	for _, f := range key {
		if f.FramePath == "" {
			continue
		}
		if _, err := os.Stat(f.FramePath); err != nil {
			logger.Warn().Str("frame", f.FramePath).Msg("key frame missing on disk")
			continue
		}
		text, err := u.captionImage(ctx, f.FramePath, prompt)
		if err != nil {
			return types.Result{QID: q.QID, Task: q.Task, Question: q.Question, Choices: q.Choices, AnswerIndex: -1}, fmt.Errorf("recaption %s: %w", f.FramePath, err)
		}
		u.record("RECAPTION", fmt.Sprintf("FRAME_%.1fs", f.Timestamp), text)
		enhanced = append(enhanced, types.FrameCaption{Timestamp: f.Timestamp, FramePath: f.FramePath, Captions: types.Captions(text)})
	}
	return u.AnswerWithCaptions(ctx, q, enhanced)
}

// AnswerOpen answers a free-form question from the k most related captions,
// presented in time order.
func (u Usecase) AnswerOpen(ctx context.Context, question string, caps []types.FrameCaption, k int) (types.Result, error) {
	start := time.Now()
	res := types.Result{Question: question, AnswerIndex: -1}

	key, err := u.KeyFrames(ctx, question, caps, k)
	if err != nil {
		return res, err
	}
	sort.SliceStable(key, func(i, j int) bool { return key[i].Timestamp < key[j].Timestamp })

	resp, err := u.chat(ctx, u.cfg.Models.LLM, []types.Message{types.UserText(prompts.OpenQuestion(question, prompts.CaptionLines(key)))})
	if err != nil {
		return res, fmt.Errorf("open answer: %w", err)
	}
	res.Answer = strings.TrimSpace(resp)
	res.Reasoning = resp
	res.SelectedFrames = key
	res.Iterations = 1
	res.Duration = time.Since(start)
	res.ProcessingSeconds = res.Duration.Seconds()
	return res, nil
}

type TimelineEntry struct {
	Timestamp float64 `json:"timestamp"`
	FramePath string  `json:"frame_path"`
	Summary   string  `json:"summary"`
}

var reSummary = regexp.MustCompile(`(?i)\bsummary\b\**\s*:\s*([^\n]+)`)

// Timeline summarizes each captioned frame in one line, preferring the
// "Summary:" section of a general caption.
func Timeline(caps []types.FrameCaption) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(caps))
	for _, c := range caps {
		text := strings.TrimSpace(string(c.Captions))
		summary := firstRunes(strings.Join(strings.Fields(text), " "), 100)
		if m := reSummary.FindStringSubmatch(text); m != nil {
			summary = strings.TrimSpace(m[1])
		}
		out = append(out, TimelineEntry{Timestamp: c.Timestamp, FramePath: c.FramePath, Summary: summary})
	}
	return out
}
