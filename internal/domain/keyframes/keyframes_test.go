package keyframes

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestThumbnail(t *testing.T) {
	dir := t.TempDir()
	white := filepath.Join(dir, "white.png")
	writePNG(t, white, color.White)

	v, err := Thumbnail(white, 4)
	require.NoError(t, err)
	require.Len(t, v, 16)
	for _, x := range v {
		require.InDelta(t, 1.0, x, 0.01)
	}

	_, err = Thumbnail(white, 0)
	require.Error(t, err)
	_, err = Thumbnail(filepath.Join(dir, "missing.png"), 4)
	require.Error(t, err)
}

func TestCluster_TwoGroups(t *testing.T) {
	vectors := [][]float32{
		{0.02, 0.01}, {0.9, 0.95}, {0.01, 0.03}, {0.92, 0.9}, {0, 0}, {0.91, 0.93},
	}
	reps, err := Cluster(vectors, 2)
	require.NoError(t, err)
	require.Len(t, reps, 2)

	low, high := reps[0], reps[1]
	require.Less(t, low.Index, high.Index)
	require.Contains(t, []int{0, 2, 4}, low.Index)
	require.Contains(t, []int{1, 3, 5}, high.Index)
	require.Equal(t, 0, low.Cluster)
	require.Equal(t, 1, high.Cluster)
	require.Len(t, low.Centroid, 2)
}

func TestCluster_ClampsK(t *testing.T) {
	reps, err := Cluster([][]float32{{0.1}, {0.9}}, 10)
	require.NoError(t, err)
	require.Len(t, reps, 2)
	require.Equal(t, 0, reps[0].Index)
	require.Equal(t, 1, reps[1].Index)
}

func TestCluster_Errors(t *testing.T) {
	reps, err := Cluster(nil, 3)
	require.NoError(t, err)
	require.Nil(t, reps)

	_, err = Cluster([][]float32{{1}}, 0)
	require.Error(t, err)

	_, err = Cluster([][]float32{{1, 2}, {1}}, 1)
	require.Error(t, err)
}

func TestAdjacentSimilarityAndChangePoints(t *testing.T) {
	vectors := [][]float32{{1, 0}, {1, 0}, {0, 1}, {0, 1}, {1, 0}}
	sims := AdjacentSimilarity(vectors)
	require.Len(t, sims, 4)
	require.InDelta(t, 1.0, sims[0], 1e-6)
	require.InDelta(t, 0.0, sims[1], 1e-6)

	require.Equal(t, []int{0, 2, 4}, ChangePoints(sims, 0.5))
	require.Equal(t, []int{0}, ChangePoints(nil, 0.5))
	require.Nil(t, AdjacentSimilarity(vectors[:1]))
}
