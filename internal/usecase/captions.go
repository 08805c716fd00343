package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/forPelevin/vidqa/internal/domain/imaging"
	"github.com/forPelevin/vidqa/internal/domain/prompts"
	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/types"
	"golang.org/x/sync/errgroup"
)

// CaptionError replaces the caption of a frame the vision model failed on.
const CaptionError = "Error generating caption"

// ProgressFunc is called after each unit of work with the number done so far.
type ProgressFunc func(done, total int)

// CaptionFrames captions every frame with the vision model using prompt
// (the general caption prompt when empty). A failure on one frame does not
// stop the others; its caption becomes CaptionError.
func (u Usecase) CaptionFrames(ctx context.Context, frames []types.Frame, prompt string, progress ProgressFunc) ([]types.FrameCaption, error) {
	if prompt == "" {
		prompt = prompts.GeneralCaption
	}
	logger := logging.WithComponent("captioner")
	out := make([]types.FrameCaption, len(frames))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.CaptionConcurrency)
	for i, fr := range frames {
		i, fr := i, fr
		g.Go(func() error {
			caption, err := u.captionImage(gctx, fr.Path, prompt)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn().Err(err).Str("frame", fr.Path).Msg("caption failed")
				caption = CaptionError
			}
			out[i] = types.FrameCaption{Timestamp: fr.Timestamp, FramePath: fr.Path, Captions: types.Captions(caption)}

			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(frames))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (u Usecase) captionImage(ctx context.Context, path, prompt string) (string, error) {
	img, err := imaging.LoadForModel(path, u.cfg.ImageMaxEdge)
	if err != nil {
		return "", err
	}
	resp, err := u.chat(ctx, u.cfg.Models.VLM, []types.Message{{Role: "user", Text: prompt, Images: []types.Image{img}}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

func SaveCaptions(path string, caps []types.FrameCaption) error {
	if caps == nil {
		caps = []types.FrameCaption{}
	}
	b, err := json.MarshalIndent(caps, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadCaptions reads a captions file. A missing file yields an empty list
// and a warning.
func LoadCaptions(path string) ([]types.FrameCaption, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger := logging.WithComponent("captions")
		logger.Warn().Str("path", path).Msg("captions file not found")
		return []types.FrameCaption{}, nil
	}
	if err != nil {
		return nil, err
	}
	var caps []types.FrameCaption
	if err := json.Unmarshal(b, &caps); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return caps, nil
}
