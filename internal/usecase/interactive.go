package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/vidqa/internal/domain/actions"
	"github.com/forPelevin/vidqa/internal/domain/imaging"
	"github.com/forPelevin/vidqa/internal/domain/prompts"
	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/types"
)

const (
	// NoFinalAnswer is the answer when the coordinator never commits to one.
	NoFinalAnswer = "Unable to determine answer - max iterations reached"
	// PipelineErrorAnswer is the answer of a question the pipeline failed on.
	PipelineErrorAnswer = "Error processing question"
)

// Interactive answers a question through the coordinator loop: each turn the
// coordinator model picks one action (frame selection, visual analysis,
// continue or final answer) and receives the system's response. The loop
// ends on a final answer or after MaxIterations turns, when one last
// standalone prompt asks for a best guess.
func (u Usecase) Interactive(ctx context.Context, q types.Question, caps []types.FrameCaption) (types.Result, error) {
	res := types.Result{QID: q.QID, Task: q.Task, Question: q.Question, Choices: q.Choices, AnswerIndex: -1}

	initial := prompts.Initial(q.Question, q.Choices)
	u.record("LLM_COORDINATOR", "START", fmt.Sprintf("Question: %s\nChoices: %s", q.Question, strings.Join(q.Choices, ", ")))
	var history []types.Turn
	// selections are keyed by the iteration that produced them
	selections := map[int][]types.FrameCaption{}

	for iter := 1; iter <= u.cfg.MaxIterations; iter++ {
		resp, err := u.chat(ctx, u.cfg.Models.LLM, conversation(initial, history))
		if err != nil {
			return res, fmt.Errorf("coordinator iteration %d: %w", iter, err)
		}
		u.record("LLM_COORDINATOR", fmt.Sprintf("ITERATION_%d", iter), resp)

		act := actions.Parse(resp)
		var system string
		switch act.Kind {
		case types.ActionFinalAnswer:
			u.record("LLM_COORDINATOR", "FINAL_ANSWER", act.Body)
			res.Answer = act.Body
			res.AnswerIndex = actions.MatchChoice(act.Body, q.Choices)
			res.Reasoning = resp
			res.Iterations = iter
			res.History = history
			res.SelectedFrames = latestSelection(selections)
			return res, nil

		case types.ActionFrameSelector:
			sel, err := u.selectFrames(ctx, act.Body, q, caps)
			if err != nil {
				return res, err
			}
			selections[iter] = sel
			system = selectionSummary(sel)

		case types.ActionVLM:
			frames := latestSelection(selections)
			if frames == nil {
				frames = caps[:min(3, len(caps))]
			}
			analysis, err := u.analyzeFrames(ctx, act.Body, frames)
			if err != nil {
				return res, err
			}
			system = "VLM ANALYSIS:\n" + analysis

		case types.ActionContinue:
			system = prompts.ContinueAck(act.Body)

		default:
			system = prompts.Reprompt
		}

		u.record("SYSTEM", "RESPONSE", system)
		history = append(history, types.Turn{Iteration: iter, Action: act.Kind, LLMResponse: resp, SystemResponse: system})
	}

	// The best-guess prompt goes out on its own, without the conversation.
	final, err := u.chat(ctx, u.cfg.Models.LLM, []types.Message{types.UserText(prompts.Final(u.cfg.MaxIterations, q.Question, q.Choices))})
	if err != nil {
		return res, fmt.Errorf("final prompt: %w", err)
	}
	u.record("LLM_COORDINATOR", "MAX_ITERATIONS_RESPONSE", final)

	res.Answer = NoFinalAnswer
	if ans, ok := actions.FinalAnswer(final); ok {
		res.Answer = ans
		res.AnswerIndex = actions.MatchChoice(ans, q.Choices)
	}
	res.Reasoning = final
	res.Iterations = u.cfg.MaxIterations
	res.MaxIterationsReached = true
	res.History = history
	res.SelectedFrames = latestSelection(selections)
	return res, nil
}

// ProcessMCQ runs Interactive with timing and never fails: errors are
// reported inside the result.
func (u Usecase) ProcessMCQ(ctx context.Context, q types.Question, caps []types.FrameCaption) types.Result {
	u.record("PIPELINE", "START", "Processing MCQ: "+q.Question)
	start := time.Now()

	res, err := u.Interactive(ctx, q, caps)
	res.Duration = time.Since(start)
	res.ProcessingSeconds = res.Duration.Seconds()
	if err != nil {
		msg := "Pipeline error: " + err.Error()
		u.record("PIPELINE", "ERROR", msg)
		logger := logging.WithComponent("pipeline")
		logger.Error().Err(err).Str("question", q.Question).Msg("question failed")
		res.Answer = PipelineErrorAnswer
		res.AnswerIndex = -1
		res.Reasoning = msg
		res.Error = err.Error()
		return res
	}
	u.record("PIPELINE", "COMPLETE", "Final answer: "+res.Answer)
	return res
}

// conversation rebuilds the coordinator's message list: the initial prompt,
// then the reply and system response of every previous turn.
func conversation(initial string, history []types.Turn) []types.Message {
	msgs := make([]types.Message, 0, 1+2*len(history))
	msgs = append(msgs, types.UserText(initial))
	for _, h := range history {
		msgs = append(msgs, types.AssistantText(h.LLMResponse), types.UserText(prompts.FollowUp(h.SystemResponse)))
	}
	return msgs
}

func latestSelection(selections map[int][]types.FrameCaption) []types.FrameCaption {
	latest := -1
	for iter := range selections {
		if iter > latest {
			latest = iter
		}
	}
	if latest < 0 {
		return nil
	}
	return selections[latest]
}

func (u Usecase) selectFrames(ctx context.Context, query string, q types.Question, caps []types.FrameCaption) ([]types.FrameCaption, error) {
	u.record("FRAME_SELECTOR", "QUERY", "Query: "+query+"\nOriginal Question: "+q.Question)

	p := prompts.FrameSelector(query, q.Question, q.Choices, prompts.CaptionBlock(caps))
	resp, err := u.chat(ctx, u.cfg.Models.Selector, []types.Message{types.UserText(p)})
	if err != nil {
		return nil, fmt.Errorf("frame selector: %w", err)
	}
	u.record("FRAME_SELECTOR", "SELECTION_RESPONSE", resp)

	idx := actions.ParseFrameSelection(resp, len(caps), actions.SelectionRule{Marker: prompts.SelectedFramesMarker})
	sel := make([]types.FrameCaption, 0, len(idx))
	for _, i := range idx {
		sel = append(sel, caps[i])
	}
	u.record("FRAME_SELECTOR", "SELECTED_FRAMES", fmt.Sprintf("Selected %d frames: %v", len(sel), timestamps(sel)))
	return sel, nil
}

func selectionSummary(sel []types.FrameCaption) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FRAME_SELECTOR found %d relevant frames:", len(sel))
	for i, f := range sel {
		fmt.Fprintf(&b, "\nFrame %d: %.1fs - %s...", i+1, f.Timestamp, firstRunes(string(f.Captions), 100))
	}
	return b.String()
}

func (u Usecase) analyzeFrames(ctx context.Context, query string, frames []types.FrameCaption) (string, error) {
	u.record("VLM", "QUERY", fmt.Sprintf("Query: %s\nFrames: %v", query, timestamps(frames)))

	logger := logging.WithComponent("vlm")
	msg := types.Message{Role: "user", Text: prompts.VLM(query)}
	for _, f := range frames[:min(u.cfg.MaxVLMFrames, len(frames))] {
		img, err := imaging.LoadForModel(f.FramePath, u.cfg.ImageMaxEdge)
		if err != nil {
			logger.Warn().Err(err).Str("frame", f.FramePath).Msg("skipping unreadable frame")
			continue
		}
		msg.Images = append(msg.Images, img)
	}

	resp, err := u.chat(ctx, u.cfg.Models.VLM, []types.Message{msg})
	if err != nil {
		return "", fmt.Errorf("vlm: %w", err)
	}
	u.record("VLM", "ANALYSIS_RESPONSE", resp)
	return resp, nil
}

func timestamps(caps []types.FrameCaption) []float64 {
	out := make([]float64, len(caps))
	for i, c := range caps {
		out[i] = c.Timestamp
	}
	return out
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
