package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/forPelevin/vidqa/internal/types"
)

// fakeChat replies from a per-model script; each call consumes the next reply.
type fakeChat struct {
	mu      sync.Mutex
	scripts map[string][]string
	reply   func(model string, msgs []types.Message) (string, error)
	calls   []chatCall
}

type chatCall struct {
	model string
	msgs  []types.Message
}

func (f *fakeChat) Chat(_ context.Context, model string, msgs []types.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chatCall{model: model, msgs: msgs})
	if f.reply != nil {
		return f.reply(model, msgs)
	}
	s := f.scripts[model]
	if len(s) == 0 {
		return "", fmt.Errorf("no scripted reply for %s", model)
	}
	f.scripts[model] = s[1:]
	return s[0], nil
}

func (f *fakeChat) callsFor(model string) []chatCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chatCall
	for _, c := range f.calls {
		if c.model == model {
			out = append(out, c)
		}
	}
	return out
}

// fakeEmbedder maps each text to a fixed vector by keyword.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{0, 0, 1}
		for k, v := range f.vectors {
			if strings.Contains(t, k) {
				out[i] = v
			}
		}
	}
	return out, nil
}

type fakeVideoTool struct {
	frames    []types.Frame
	extractIn []string
	cutLen    time.Duration
}

func (f *fakeVideoTool) Probe(_ context.Context, in string) (types.VideoInfo, error) {
	return types.VideoInfo{Path: in, FPS: 30, Duration: time.Minute}, nil
}

func (f *fakeVideoTool) ExtractFrames(_ context.Context, in, _ string, _ time.Duration) ([]types.Frame, error) {
	f.extractIn = append(f.extractIn, in)
	return f.frames, nil
}

func (f *fakeVideoTool) CutSegment(_ context.Context, _, _ string, length time.Duration) error {
	f.cutLen = length
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *fakeRecorder) Record(component, kind, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, component+"/"+kind)
}

func (r *fakeRecorder) has(entry string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e == entry {
			return true
		}
	}
	return false
}

type savedAnswer struct {
	runID string
	res   types.Result
	gold  int
}

type fakeStore struct {
	runs    []string
	answers []savedAnswer
	failRun bool
}

func (s *fakeStore) CreateRun(_ context.Context, strategy, dataset string) (string, error) {
	if s.failRun {
		return "", errors.New("db down")
	}
	id := fmt.Sprintf("run-%d", len(s.runs)+1)
	s.runs = append(s.runs, strategy+":"+dataset)
	return id, nil
}

func (s *fakeStore) SaveAnswer(_ context.Context, runID string, res types.Result, gold int) error {
	s.answers = append(s.answers, savedAnswer{runID: runID, res: res, gold: gold})
	return nil
}

func (s *fakeStore) Summary(_ context.Context, runID string) (types.EvalSummary, error) {
	sum := types.EvalSummary{RunID: runID, ByTask: map[string]types.TaskAccuracy{}}
	for _, a := range s.answers {
		if a.runID != runID {
			continue
		}
		sum.Total++
		if a.gold < 0 {
			continue
		}
		sum.Graded++
		ta := sum.ByTask[a.res.Task]
		ta.Total++
		if a.res.Error == "" && a.res.AnswerIndex == a.gold {
			sum.Correct++
			ta.Correct++
		}
		sum.ByTask[a.res.Task] = ta
	}
	if sum.Graded > 0 {
		sum.Accuracy = float64(sum.Correct) / float64(sum.Graded)
	}
	return sum, nil
}

func (s *fakeStore) Close() error { return nil }

func testCaptions(paths ...string) []types.FrameCaption {
	texts := []string{
		"Objects: a red sofa and a floor lamp. Summary: living room with sofa.",
		"Objects: a kitchen counter with a kettle. Summary: kitchen.",
		"Objects: a desk with a laptop and a mug. Summary: home office desk.",
		"Objects: a bed and a window. Summary: bedroom.",
	}
	out := make([]types.FrameCaption, len(texts))
	for i, t := range texts {
		out[i] = types.FrameCaption{Timestamp: float64(i * 3), Captions: types.Captions(t)}
		if i < len(paths) {
			out[i].FramePath = paths[i]
		}
	}
	return out
}
