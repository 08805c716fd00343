// Package keyframes picks a small set of frames that represents a video.
package keyframes

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sort"

	"github.com/forPelevin/vidqa/internal/domain/relevance"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"golang.org/x/image/draw"
)

// Thumbnail decodes an image and returns a size x size gray-scale vector with
// values in [0,1].
func Thumbnail(path string, size int) ([]float32, error) {
	if size <= 0 {
		return nil, fmt.Errorf("thumbnail size must be > 0, got %d", size)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ThumbnailOf(src, size), nil
}

func ThumbnailOf(src image.Image, size int) []float32 {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	out := make([]float32, len(dst.Pix))
	for i, p := range dst.Pix {
		out[i] = float32(p) / 255
	}
	return out
}

// Representative is the frame closest to the centroid of one cluster.
type Representative struct {
	Index    int
	Cluster  int
	Centroid []float64
}

type observation struct {
	index  int
	coords clusters.Coordinates
}

func (o observation) Coordinates() clusters.Coordinates { return o.coords }

func (o observation) Distance(p clusters.Coordinates) float64 { return o.coords.Distance(p) }

// Cluster partitions vectors with k-means and returns one representative per
// non-empty cluster, ordered by frame index. k is clamped to len(vectors).
func Cluster(vectors [][]float32, k int) ([]Representative, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	if k <= 0 {
		return nil, errors.New("k must be > 0")
	}
	k = min(k, len(vectors))

	dim := len(vectors[0])
	obs := make(clusters.Observations, 0, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), dim)
		}
		c := make(clusters.Coordinates, dim)
		for j, x := range v {
			c[j] = float64(x)
		}
		obs = append(obs, observation{index: i, coords: c})
	}

	parts, err := kmeans.New().Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("kmeans: %w", err)
	}

	var out []Representative
	for _, cl := range parts {
		best, bestDist := -1, math.Inf(1)
		for _, o := range cl.Observations {
			ob := o.(observation)
			if d := ob.Distance(cl.Center); d < bestDist {
				best, bestDist = ob.index, d
			}
		}
		if best < 0 {
			continue
		}
		out = append(out, Representative{Index: best, Centroid: append([]float64(nil), cl.Center...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	for i := range out {
		out[i].Cluster = i
	}
	return out, nil
}

// AdjacentSimilarity returns cosine similarity between each frame and the
// next one; the result has len(vectors)-1 entries.
func AdjacentSimilarity(vectors [][]float32) []float32 {
	if len(vectors) < 2 {
		return nil
	}
	out := make([]float32, len(vectors)-1)
	for i := 1; i < len(vectors); i++ {
		out[i-1] = relevance.Cosine(vectors[i-1], vectors[i])
	}
	return out
}

// ChangePoints returns frame 0 plus every frame whose similarity to its
// predecessor is below threshold.
func ChangePoints(sims []float32, threshold float32) []int {
	out := []int{0}
	for i, s := range sims {
		if s < threshold {
			out = append(out, i+1)
		}
	}
	return out
}
