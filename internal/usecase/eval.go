package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forPelevin/vidqa/internal/domain/prompts"
	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/types"
)

type Strategy string

const (
	StrategyInteractive Strategy = "interactive"
	StrategyCaptions    Strategy = "captions"
	StrategyEnhanced    Strategy = "enhanced"
	StrategySelector    Strategy = "selector"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyInteractive, StrategyCaptions, StrategyEnhanced, StrategySelector:
		return st, nil
	}
	return "", fmt.Errorf("unknown strategy %q (want interactive, captions, enhanced or selector)", s)
}

type EvalInput struct {
	Strategy  Strategy
	Dataset   string
	Questions []types.Question
	Captions  []types.FrameCaption
	// K is the number of key frames used by the enhanced and selector strategies.
	K          int
	ReportPath string
	OnResult   func(i, total int, res types.Result)
}

type EvalResult struct {
	Summary types.EvalSummary
	Results []types.Result
}

// Evaluate answers every question with the chosen strategy, stores each
// answer and returns overall and per-task accuracy over the questions whose
// correct choice is known.
func (u Usecase) Evaluate(ctx context.Context, in EvalInput) (EvalResult, error) {
	if u.d.Store == nil {
		return EvalResult{}, errors.New("evaluate: result store is not configured")
	}
	if in.K <= 0 {
		in.K = 3
	}
	logger := logging.WithComponent("eval")

	runID, err := u.d.Store.CreateRun(ctx, string(in.Strategy), in.Dataset)
	if err != nil {
		return EvalResult{}, err
	}
	logger.Info().Str("run_id", runID).Str("strategy", string(in.Strategy)).Int("questions", len(in.Questions)).Msg("evaluation started")

	var report *os.File
	if in.ReportPath != "" {
		if err := os.MkdirAll(filepath.Dir(in.ReportPath), 0o755); err != nil {
			return EvalResult{}, err
		}
		report, err = os.Create(in.ReportPath)
		if err != nil {
			return EvalResult{}, err
		}
		defer report.Close()
		fmt.Fprintf(report, "Answers and reasoning (strategy: %s, run: %s)\n%s\n\n", in.Strategy, runID, strings.Repeat("=", 60))
	}

	out := EvalResult{Results: make([]types.Result, 0, len(in.Questions))}
	for i, q := range in.Questions {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := u.Answer(ctx, in.Strategy, q, in.Captions, in.K)
		if err != nil {
			logger.Error().Err(err).Str("qid", q.QID).Msg("question failed")
			res.Answer = PipelineErrorAnswer
			res.AnswerIndex = -1
			res.Reasoning = "Pipeline error: " + err.Error()
			res.Error = err.Error()
		}
		if err := u.d.Store.SaveAnswer(ctx, runID, res, q.Gold); err != nil {
			return out, err
		}
		if report != nil {
			writeReportEntry(report, i, len(in.Questions), q, res)
		}
		out.Results = append(out.Results, res)
		if in.OnResult != nil {
			in.OnResult(i, len(in.Questions), res)
		}
	}

	out.Summary, err = u.d.Store.Summary(ctx, runID)
	if err != nil {
		return out, err
	}
	if report != nil {
		writeReportSummary(report, out.Summary)
	}
	logger.Info().Str("run_id", runID).Float64("accuracy", out.Summary.Accuracy).Int("graded", out.Summary.Graded).Msg("evaluation finished")
	return out, nil
}

// Answer runs one multiple-choice question through strategy s. k bounds the
// key frames used by the enhanced and selector strategies. A failed model
// call is returned as an error for every strategy.
func (u Usecase) Answer(ctx context.Context, s Strategy, q types.Question, caps []types.FrameCaption, k int) (types.Result, error) {
	switch s {
	case StrategyInteractive:
		res := u.ProcessMCQ(ctx, q, caps)
		if res.Error != "" {
			return res, errors.New(res.Error)
		}
		return res, nil
	case StrategyCaptions:
		return u.AnswerWithCaptions(ctx, q, caps)
	case StrategyEnhanced:
		return u.Enhanced(ctx, q, caps, k)
	case StrategySelector:
		return u.AnswerWithCaptions(ctx, q, u.SelectWithLLM(ctx, q, caps, k))
	}
	return types.Result{QID: q.QID, Task: q.Task, Question: q.Question, Choices: q.Choices, AnswerIndex: -1}, fmt.Errorf("unknown strategy %q", s)
}

func writeReportEntry(f *os.File, i, total int, q types.Question, res types.Result) {
	fmt.Fprintf(f, "Question %d/%d\nTask: %s\nQ: %s\nChoices:\n", i+1, total, q.Task, q.Question)
	for j, c := range q.Choices {
		fmt.Fprintf(f, "  %s. %s\n", prompts.Letter(j), c)
	}
	if res.Error != "" {
		fmt.Fprintf(f, "\nERROR: %s\n", res.Error)
	} else {
		fmt.Fprintf(f, "\nAnswer: %s\n", res.Answer)
		if q.Gold >= 0 {
			fmt.Fprintf(f, "Correct: %s (%v)\n", prompts.Letter(q.Gold), res.AnswerIndex == q.Gold)
		}
		if len(res.SelectedFrames) > 0 {
			fmt.Fprintf(f, "Key frames (%d):\n", len(res.SelectedFrames))
			for _, fc := range res.SelectedFrames {
				fmt.Fprintln(f, strings.TrimRight(fmt.Sprintf("  %.1fs %s", fc.Timestamp, fc.FramePath), " "))
			}
		}
		fmt.Fprintf(f, "Full reasoning:\n%s\n", res.Reasoning)
	}
	fmt.Fprintf(f, "\n%s\n\n", strings.Repeat("=", 60))
}

func writeReportSummary(f *os.File, s types.EvalSummary) {
	fmt.Fprintf(f, "Summary\nTotal questions: %d\nGraded: %d\nCorrect: %d\nErrors: %d\nOverall accuracy: %.2f%%\n",
		s.Total, s.Graded, s.Correct, s.Errors, 100*s.Accuracy)
	tasks := make([]string, 0, len(s.ByTask))
	for k := range s.ByTask {
		tasks = append(tasks, k)
	}
	sort.Strings(tasks)
	for _, k := range tasks {
		ta := s.ByTask[k]
		fmt.Fprintf(f, "  %s: %d/%d (%.2f%%)\n", k, ta.Correct, ta.Total, 100*ta.Accuracy)
	}
}
