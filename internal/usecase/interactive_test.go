package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/vidqa/internal/domain/prompts"
	"github.com/forPelevin/vidqa/internal/ports"
	"github.com/forPelevin/vidqa/internal/types"
	"github.com/stretchr/testify/require"
)

var testModels = Models{LLM: "llm", Selector: "selector", VLM: "vlm"}

func testQuestion() types.Question {
	return types.Question{
		QID:      "q1",
		Question: "Where is the lamp?",
		Choices:  []string{"next to the sofa", "on the desk", "in the kitchen"},
		Task:     "spatial",
		Gold:     0,
	}
}

func imageFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	var out []string
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, "f"+string(rune('0'+i))+".jpg")
		require.NoError(t, os.WriteFile(p, []byte{byte(i)}, 0o644))
		out = append(out, p)
	}
	return out
}

func TestInteractive_SelectorThenVLMThenAnswer(t *testing.T) {
	paths := imageFiles(t, 4)
	caps := testCaptions(paths...)
	chat := &fakeChat{scripts: map[string][]string{
		"llm": {
			"FRAME_SELECTOR: frames showing a lamp",
			"VLM: where exactly is the lamp?",
			"FINAL_ANSWER: A. The lamp stands next to the sofa in frame 1.",
		},
		"selector": {"The lamp is visible here.\nSELECTED_FRAMES: 1, 3\nOther frames do not show it."},
		"vlm":      {"Frame 0.0s: a floor lamp stands left of the red sofa."},
	}}
	rec := &fakeRecorder{}
	uc := New(Deps{Chat: chat, Log: rec}, Config{Models: testModels})

	res, err := uc.Interactive(context.Background(), testQuestion(), caps)
	require.NoError(t, err)
	require.Equal(t, "A. The lamp stands next to the sofa in frame 1.", res.Answer)
	require.Equal(t, 0, res.AnswerIndex)
	require.Equal(t, 3, res.Iterations)
	require.False(t, res.MaxIterationsReached)
	require.Len(t, res.History, 2)
	require.Equal(t, types.ActionFrameSelector, res.History[0].Action)
	require.True(t, strings.HasPrefix(res.History[0].SystemResponse, "FRAME_SELECTOR found 2 relevant frames:\nFrame 1: 0.0s - Objects: a red sofa"))
	require.Contains(t, res.History[0].SystemResponse, "\nFrame 2: 6.0s - ")
	require.Equal(t, "VLM ANALYSIS:\nFrame 0.0s: a floor lamp stands left of the red sofa.", res.History[1].SystemResponse)
	require.Equal(t, []types.FrameCaption{caps[0], caps[2]}, res.SelectedFrames)

	// the selector sees every caption
	sel := chat.callsFor("selector")
	require.Len(t, sel, 1)
	require.Contains(t, sel[0].msgs[0].Text, "QUERY FROM COORDINATOR: frames showing a lamp")
	require.Contains(t, sel[0].msgs[0].Text, "Frame 4 (at 9.0s):")

	// the VLM receives the selected frames only
	vlm := chat.callsFor("vlm")
	require.Len(t, vlm, 1)
	require.Len(t, vlm[0].msgs[0].Images, 2)
	require.Equal(t, []byte{0}, vlm[0].msgs[0].Images[0].Data)
	require.Equal(t, []byte{2}, vlm[0].msgs[0].Images[1].Data)
	require.Contains(t, vlm[0].msgs[0].Text, "answer: where exactly is the lamp?")

	// the third coordinator call replays the whole conversation
	llm := chat.callsFor("llm")
	require.Len(t, llm, 3)
	require.Len(t, llm[0].msgs, 1)
	third := llm[2].msgs
	require.Len(t, third, 5)
	require.Equal(t, "assistant", third[1].Role)
	require.Equal(t, "FRAME_SELECTOR: frames showing a lamp", third[1].Text)
	require.True(t, strings.HasPrefix(third[2].Text, "Response: FRAME_SELECTOR found 2"))
	require.True(t, strings.HasPrefix(third[4].Text, "Response: VLM ANALYSIS:"))

	require.Equal(t, "LLM_COORDINATOR/START", rec.entries[0])
	for _, e := range []string{"LLM_COORDINATOR/ITERATION_1", "FRAME_SELECTOR/SELECTED_FRAMES", "VLM/ANALYSIS_RESPONSE", "LLM_COORDINATOR/FINAL_ANSWER", "SYSTEM/RESPONSE"} {
		require.True(t, rec.has(e), "missing log entry %s", e)
	}
}

func TestInteractive_VLMWithoutSelectionUsesFirstThreeFrames(t *testing.T) {
	paths := imageFiles(t, 4)
	caps := testCaptions(paths[0], filepath.Join(t.TempDir(), "gone.jpg"), paths[2], paths[3])
	chat := &fakeChat{scripts: map[string][]string{
		"llm": {"VLM: describe the room", "FINAL_ANSWER: B"},
		"vlm": {"a room"},
	}}
	res, err := New(Deps{Chat: chat}, Config{Models: testModels}).Interactive(context.Background(), testQuestion(), caps)
	require.NoError(t, err)
	require.Equal(t, 1, res.AnswerIndex)
	require.Nil(t, res.SelectedFrames)

	vlm := chat.callsFor("vlm")
	require.Len(t, vlm, 1)
	// frames 1 and 3; frame 2 is missing on disk and skipped
	require.Len(t, vlm[0].msgs[0].Images, 2)
	require.Equal(t, []byte{2}, vlm[0].msgs[0].Images[1].Data)
}

func TestInteractive_UsesMostRecentSelection(t *testing.T) {
	paths := imageFiles(t, 4)
	caps := testCaptions(paths...)
	llm := []string{"FRAME_SELECTOR: first"}
	for i := 0; i < 9; i++ {
		llm = append(llm, "FRAME_SELECTOR: again")
	}
	llm = append(llm, "VLM: look")
	selector := make([]string, 10)
	for i := range selector {
		selector[i] = "SELECTED_FRAMES: 1"
	}
	selector[9] = "SELECTED_FRAMES: 4"

	chat := &fakeChat{scripts: map[string][]string{
		"llm":      append(llm, "FINAL_ANSWER: C"),
		"selector": selector,
		"vlm":      {"bed"},
	}}
	res, err := New(Deps{Chat: chat}, Config{Models: testModels, MaxIterations: 12}).Interactive(context.Background(), testQuestion(), caps)
	require.NoError(t, err)
	require.Equal(t, 12, res.Iterations)
	vlm := chat.callsFor("vlm")
	require.Len(t, vlm, 1)
	require.Equal(t, [][]byte{{3}}, [][]byte{vlm[0].msgs[0].Images[0].Data})
	require.Equal(t, []types.FrameCaption{caps[3]}, res.SelectedFrames)
}

func TestInteractive_MaxIterations(t *testing.T) {
	cases := []struct {
		name       string
		final      string
		wantAnswer string
		wantIdx    int
	}{
		{"best guess", "I lean towards it.\nFINAL_ANSWER: C. kitchen", "C. kitchen", 2},
		{"no answer", "I cannot tell.", NoFinalAnswer, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &fakeChat{scripts: map[string][]string{
				"llm": {"CONTINUE: need more", "hmm, not sure", tc.final},
			}}
			uc := New(Deps{Chat: chat}, Config{Models: testModels, MaxIterations: 2})
			res, err := uc.Interactive(context.Background(), testQuestion(), testCaptions())
			require.NoError(t, err)
			require.True(t, res.MaxIterationsReached)
			require.Equal(t, 2, res.Iterations)
			require.Equal(t, tc.wantAnswer, res.Answer)
			require.Equal(t, tc.wantIdx, res.AnswerIndex)
			require.Equal(t, tc.final, res.Reasoning)

			require.Len(t, res.History, 2)
			require.Equal(t, prompts.ContinueAck("need more"), res.History[0].SystemResponse)
			require.Equal(t, prompts.Reprompt, res.History[1].SystemResponse)
			require.Equal(t, types.ActionUnknown, res.History[1].Action)

			calls := chat.callsFor("llm")
			require.Len(t, calls, 3)
			last := calls[2].msgs
			require.Len(t, last, 1)
			require.Equal(t, "user", last[0].Role)
			require.Contains(t, last[0].Text, "maximum number of iterations (2)")
			require.NotContains(t, last[0].Text, "need more")
		})
	}
}

func TestInteractive_RetriesOnlyRateLimits(t *testing.T) {
	attempts := 0
	chat := &fakeChat{reply: func(string, []types.Message) (string, error) {
		attempts++
		if attempts <= 2 {
			return "", ports.ErrRateLimited
		}
		return "FINAL_ANSWER: A", nil
	}}
	res, err := New(Deps{Chat: chat}, Config{Models: testModels}).Interactive(context.Background(), testQuestion(), nil)
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, "A", res.Answer)

	attempts = 0
	chat.reply = func(string, []types.Message) (string, error) {
		attempts++
		return "", ports.ErrRateLimited
	}
	_, err = New(Deps{Chat: chat}, Config{Models: testModels, MaxRetries: 3}).Interactive(context.Background(), testQuestion(), nil)
	require.ErrorIs(t, err, ports.ErrRateLimited)
	require.Equal(t, 3, attempts)

	attempts = 0
	chat.reply = func(string, []types.Message) (string, error) {
		attempts++
		return "", errors.New("bad request")
	}
	_, err = New(Deps{Chat: chat}, Config{Models: testModels}).Interactive(context.Background(), testQuestion(), nil)
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestProcessMCQ_ReportsErrors(t *testing.T) {
	chat := &fakeChat{reply: func(string, []types.Message) (string, error) {
		return "", errors.New("service unavailable")
	}}
	rec := &fakeRecorder{}
	res := New(Deps{Chat: chat, Log: rec}, Config{Models: testModels}).ProcessMCQ(context.Background(), testQuestion(), nil)
	require.Equal(t, PipelineErrorAnswer, res.Answer)
	require.Equal(t, -1, res.AnswerIndex)
	require.True(t, strings.HasPrefix(res.Reasoning, "Pipeline error: "))
	require.Contains(t, res.Error, "service unavailable")
	require.Equal(t, "Where is the lamp?", res.Question)
	require.Equal(t, testQuestion().Choices, res.Choices)
	require.True(t, rec.has("PIPELINE/START"))
	require.True(t, rec.has("PIPELINE/ERROR"))
}

func TestProcessMCQ_Success(t *testing.T) {
	chat := &fakeChat{scripts: map[string][]string{"llm": {"FINAL_ANSWER: B. on the desk"}}}
	res := New(Deps{Chat: chat}, Config{Models: testModels}).ProcessMCQ(context.Background(), testQuestion(), nil)
	require.Empty(t, res.Error)
	require.Equal(t, 1, res.AnswerIndex)
	require.Equal(t, 1, res.Iterations)
	require.GreaterOrEqual(t, res.ProcessingSeconds, 0.0)
}
