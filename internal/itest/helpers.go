//go:build integration

package itest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// findRepoRoot walks up from the working directory to the module that
// holds cmd/vidqa.
func findRepoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			if _, err := os.Stat(filepath.Join(wd, "cmd", "vidqa")); err == nil {
				return wd, nil
			}
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}
	return "", errors.New("could not locate the vidqa module root")
}

type probedStream struct {
	Seconds float64
	Width   int
	Height  int
}

// probeStream asks the ffprobe binary directly, as a reference for the
// adapter under test.
func probeStream(path string) (probedStream, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return probedStream{}, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	var raw struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return probedStream{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if len(raw.Streams) == 0 {
		return probedStream{}, fmt.Errorf("ffprobe: no video stream in %s", path)
	}
	sec, err := strconv.ParseFloat(raw.Format.Duration, 64)
	if err != nil {
		return probedStream{}, fmt.Errorf("parse duration %q: %w", raw.Format.Duration, err)
	}
	return probedStream{Seconds: sec, Width: raw.Streams[0].Width, Height: raw.Streams[0].Height}, nil
}
