package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/ports"
	"github.com/forPelevin/vidqa/internal/types"
)

// Recorder receives every exchange between pipeline components.
type Recorder interface {
	Record(component, kind, content string)
}

type Deps struct {
	Video ports.VideoTool
	Chat  ports.ChatModel
	// Embed is optional; without it key frames are ranked lexically.
	Embed ports.Embedder
	Store ports.ResultStore
	Log   Recorder
}

type Models struct {
	LLM      string
	Selector string
	VLM      string
}

type Config struct {
	Models Models

	MaxIterations int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxVLMFrames  int

	CaptionConcurrency int
	// ImageMaxEdge shrinks images sent to the vision model; 0 sends files as is.
	ImageMaxEdge int
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:      10,
		MaxRetries:         6,
		RetryDelay:         10 * time.Second,
		MaxVLMFrames:       5,
		CaptionConcurrency: 4,
	}
}

type Usecase struct {
	d   Deps
	cfg Config
}

func New(d Deps, cfg Config) Usecase {
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.MaxVLMFrames <= 0 {
		cfg.MaxVLMFrames = def.MaxVLMFrames
	}
	if cfg.CaptionConcurrency <= 0 {
		cfg.CaptionConcurrency = def.CaptionConcurrency
	}
	return Usecase{d: d, cfg: cfg}
}

func (u Usecase) record(component, kind, content string) {
	if u.d.Log != nil {
		u.d.Log.Record(component, kind, content)
	}
}

// chat calls the model, retrying only on rate limits.
func (u Usecase) chat(ctx context.Context, model string, msgs []types.Message) (string, error) {
	var out string
	err := withRetry(ctx, u.cfg.MaxRetries, u.cfg.RetryDelay, func() error {
		var err error
		out, err = u.d.Chat.Chat(ctx, model, msgs)
		return err
	})
	return out, err
}

func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	logger := logging.WithComponent("retry")
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ports.ErrRateLimited) || attempt == attempts {
			return err
		}
		logger.Warn().Int("attempt", attempt).Dur("wait", delay).Msg("rate limited, waiting")
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
