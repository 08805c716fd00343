package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/forPelevin/vidqa/internal/types"
)

var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// FrameName is the file name a frame sampled at ts seconds is stored under.
// Zero padding keeps lexical and timeline order identical.
func FrameName(ts float64) string {
	return fmt.Sprintf("frame_%09.3fs.jpg", ts)
}

// ParseFrameTimestamp recovers the timestamp from a frame file name such as
// "frame_00012.000s.jpg" or "frame_12.5s.png".
func ParseFrameTimestamp(name string) (float64, bool) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimPrefix(base, "frame_")
	base = strings.TrimSuffix(base, "s")
	ts, err := strconv.ParseFloat(base, 64)
	if err != nil || ts < 0 {
		return 0, false
	}
	return ts, true
}

// LoadFrames lists image files in dir ordered by timestamp. Files whose name
// carries no timestamp get 0 and keep their lexical position.
func LoadFrames(dir string) ([]types.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExts[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	frames := make([]types.Frame, 0, len(names))
	for _, name := range names {
		ts, _ := ParseFrameTimestamp(name)
		frames = append(frames, types.Frame{Timestamp: ts, Path: filepath.Join(dir, name)})
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Timestamp < frames[j].Timestamp })
	for i := range frames {
		frames[i].Index = i
	}
	return frames, nil
}
