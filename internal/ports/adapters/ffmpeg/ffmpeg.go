package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/vidqa/internal/types"
	"gopkg.in/vansante/go-ffprobe.v2"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) Probe(ctx context.Context, inVideo string) (types.VideoInfo, error) {
	ffprobe.SetFFProbeBinPath(a.ffprobe)
	data, err := ffprobe.ProbeURL(ctx, inVideo)
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("ffprobe %s: %w", inVideo, err)
	}

	info := types.VideoInfo{Path: inVideo}
	if data.Format != nil {
		info.Duration = data.Format.Duration()
	}
	vs := data.FirstVideoStream()
	if vs == nil {
		return types.VideoInfo{}, fmt.Errorf("ffprobe %s: no video stream", inVideo)
	}
	info.Width = vs.Width
	info.Height = vs.Height
	info.Codec = vs.CodecName
	info.FPS = parseFrameRate(vs.RFrameRate)
	if info.FPS == 0 {
		info.FPS = parseFrameRate(vs.AvgFrameRate)
	}
	if n, err := strconv.Atoi(vs.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
	} else if info.FPS > 0 {
		info.FrameCount = int(math.Round(info.Duration.Seconds() * info.FPS))
	}
	return info, nil
}

// ExtractFrames samples one frame every interval into outDir. Frames already
// present in outDir are reused instead of extracting again.
func (a *Adapter) ExtractFrames(ctx context.Context, inVideo, outDir string, interval time.Duration) ([]types.Frame, error) {
	if interval <= 0 {
		return nil, errors.New("frame interval must be > 0")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	existing, err := LoadFrames(outDir)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	tmpDir, err := os.MkdirTemp(outDir, ".extract-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inVideo,
		"-vf", "fps=1/"+fmtSeconds(interval),
		"-q:v", "2",
		filepath.Join(tmpDir, "%06d.jpg"),
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg extract frames: %w\n%s", err, string(b))
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jpg") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]types.Frame, 0, len(names))
	for i, name := range names {
		ts := float64(i) * interval.Seconds()
		dst := filepath.Join(outDir, FrameName(ts))
		if err := os.Rename(filepath.Join(tmpDir, name), dst); err != nil {
			return nil, err
		}
		frames = append(frames, types.Frame{Index: i, Timestamp: ts, Path: dst})
	}
	return frames, nil
}

func (a *Adapter) CutSegment(ctx context.Context, inVideo, outVideo string, length time.Duration) error {
	if length <= 0 {
		return errors.New("segment length must be > 0")
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inVideo,
		"-t", fmtSeconds(length),
		"-c", "copy",
		outVideo,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg cut segment: %w\n%s", err, string(b))
	}
	return nil
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
