package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forPelevin/vidqa/internal/domain/keyframes"
	"github.com/forPelevin/vidqa/internal/types"
)

type KeyFrameMethod string

const (
	MethodKMeans      KeyFrameMethod = "kmeans"
	MethodChangePoint KeyFrameMethod = "cossim"
)

type KeyFrameInput struct {
	Frames []types.Frame
	Method KeyFrameMethod
	// K is the number of clusters for MethodKMeans.
	K int
	// Threshold is the similarity below which MethodChangePoint starts a new shot.
	Threshold float32
	// ThumbSize is the edge of the gray thumbnail used as frame vector.
	ThumbSize int
	OutPath   string
	Progress  ProgressFunc
}

// SelectKeyFrames reduces extracted frames to representatives, either one
// per k-means cluster or one per detected shot change.
func (u Usecase) SelectKeyFrames(ctx context.Context, in KeyFrameInput) ([]types.KeyFrame, error) {
	if len(in.Frames) == 0 {
		return nil, fmt.Errorf("no frames to select from")
	}
	if in.ThumbSize <= 0 {
		in.ThumbSize = 32
	}

	vectors := make([][]float32, len(in.Frames))
	for i, f := range in.Frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := keyframes.Thumbnail(f.Path, in.ThumbSize)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
		if in.Progress != nil {
			in.Progress(i+1, len(in.Frames))
		}
	}

	var out []types.KeyFrame
	switch in.Method {
	case MethodKMeans, "":
		k := in.K
		if k <= 0 {
			k = 30
		}
		reps, err := keyframes.Cluster(vectors, k)
		if err != nil {
			return nil, err
		}
		for _, r := range reps {
			f := in.Frames[r.Index]
			out = append(out, types.KeyFrame{FrameIndex: f.Index, Timestamp: f.Timestamp, Path: f.Path, ClusterID: r.Cluster, Centroid: r.Centroid})
		}
	case MethodChangePoint:
		threshold := in.Threshold
		if threshold <= 0 {
			threshold = 0.9
		}
		for shot, i := range keyframes.ChangePoints(keyframes.AdjacentSimilarity(vectors), threshold) {
			f := in.Frames[i]
			out = append(out, types.KeyFrame{FrameIndex: f.Index, Timestamp: f.Timestamp, Path: f.Path, ClusterID: shot})
		}
	default:
		return nil, fmt.Errorf("unknown key frame method %q", in.Method)
	}

	if in.OutPath != "" {
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(in.OutPath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(in.OutPath, b, 0o644); err != nil {
			return nil, err
		}
	}
	return out, nil
}
