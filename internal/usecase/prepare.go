package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/forPelevin/vidqa/internal/domain/imaging"
	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/types"
)

type PrepareInput struct {
	Video     string
	FramesDir string
	Interval  time.Duration
	// Downsample applies to freshly extracted frames only.
	Downsample int
	// CaptionsPath receives the captions; when Reuse is set and the file
	// exists it is loaded instead of captioning again.
	CaptionsPath string
	Reuse        bool
	Prompt       string
	Progress     ProgressFunc
}

type ExtractInput struct {
	Video     string
	FramesDir string
	Interval  time.Duration
	// Downsample shrinks newly extracted frames by this factor; 0 keeps them.
	Downsample int
}

// Extract samples frames of a video into FramesDir. Frames already present
// in FramesDir are returned as they are and never downsampled again.
func (u Usecase) Extract(ctx context.Context, in ExtractInput) ([]types.Frame, error) {
	if u.d.Video == nil {
		return nil, errors.New("extract: video tool is not configured")
	}
	if in.Downsample == 1 || in.Downsample < 0 {
		return nil, fmt.Errorf("extract: downsample factor must be 0 or >= 2, got %d", in.Downsample)
	}
	if in.Interval <= 0 {
		in.Interval = time.Second
	}
	before, err := imaging.ListImages(in.FramesDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	frames, err := u.d.Video.ExtractFrames(ctx, in.Video, in.FramesDir, in.Interval)
	if err != nil {
		return nil, err
	}
	logger := logging.WithComponent("prepare")
	if len(before) > 0 {
		logger.Info().Str("dir", in.FramesDir).Int("frames", len(frames)).Msg("reusing extracted frames")
		return frames, nil
	}
	if in.Downsample >= 2 {
		for _, f := range frames {
			if err := imaging.Downsample(f.Path, in.Downsample); err != nil {
				return nil, err
			}
		}
		logger.Info().Int("frames", len(frames)).Int("factor", in.Downsample).Msg("frames downsampled")
	}
	return frames, nil
}

type Prepared struct {
	Info     types.VideoInfo
	Frames   []types.Frame
	Captions []types.FrameCaption
}

// Prepare turns a video into captioned frames: probe, extract, caption, save.
func (u Usecase) Prepare(ctx context.Context, in PrepareInput) (Prepared, error) {
	if u.d.Video == nil {
		return Prepared{}, errors.New("prepare: video tool is not configured")
	}
	if in.Interval <= 0 {
		in.Interval = time.Second
	}
	logger := logging.WithComponent("prepare")

	var out Prepared
	info, err := u.d.Video.Probe(ctx, in.Video)
	if err != nil {
		return out, err
	}
	out.Info = info
	logger.Info().Str("video", in.Video).Float64("fps", info.FPS).Int("frames", info.FrameCount).
		Dur("duration", info.Duration).Msg("probed video")

	out.Frames, err = u.Extract(ctx, ExtractInput{Video: in.Video, FramesDir: in.FramesDir, Interval: in.Interval, Downsample: in.Downsample})
	if err != nil {
		return out, err
	}
	if len(out.Frames) == 0 {
		return out, fmt.Errorf("prepare: no frames extracted from %s", in.Video)
	}
	logger.Info().Int("frames", len(out.Frames)).Str("dir", in.FramesDir).Msg("frames ready")

	if in.Reuse && in.CaptionsPath != "" {
		if _, err := os.Stat(in.CaptionsPath); err == nil {
			out.Captions, err = LoadCaptions(in.CaptionsPath)
			if err != nil {
				return out, err
			}
			logger.Info().Str("path", in.CaptionsPath).Int("captions", len(out.Captions)).Msg("reusing captions")
			return out, nil
		}
	}

	out.Captions, err = u.CaptionFrames(ctx, out.Frames, in.Prompt, in.Progress)
	if err != nil {
		return out, err
	}
	if in.CaptionsPath != "" {
		if err := SaveCaptions(in.CaptionsPath, out.Captions); err != nil {
			return out, err
		}
	}
	return out, nil
}

// CutTestSegment copies the first length of a video, for quick experiments
// on long inputs.
func (u Usecase) CutTestSegment(ctx context.Context, in, out string, length time.Duration) error {
	if u.d.Video == nil {
		return errors.New("cut: video tool is not configured")
	}
	if in == out {
		return errors.New("cut: output must differ from input")
	}
	if err := u.d.Video.CutSegment(ctx, in, out, length); err != nil {
		return err
	}
	logger := logging.WithComponent("prepare")
	logger.Info().Str("out", out).Dur("length", length).Msg("segment written")
	return nil
}
