package ports

import (
	"context"
	"errors"
	"time"

	"github.com/forPelevin/vidqa/internal/types"
)

// ErrRateLimited marks an upstream rejection that is worth retrying later.
var ErrRateLimited = errors.New("rate limited")

type VideoTool interface {
	Probe(ctx context.Context, inVideo string) (types.VideoInfo, error)
	ExtractFrames(ctx context.Context, inVideo, outDir string, interval time.Duration) ([]types.Frame, error)
	CutSegment(ctx context.Context, inVideo, outVideo string, length time.Duration) error
}

type ChatModel interface {
	Chat(ctx context.Context, model string, msgs []types.Message) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ResultStore interface {
	CreateRun(ctx context.Context, strategy, dataset string) (string, error)
	SaveAnswer(ctx context.Context, runID string, res types.Result, gold int) error
	Summary(ctx context.Context, runID string) (types.EvalSummary, error)
	Close() error
}
