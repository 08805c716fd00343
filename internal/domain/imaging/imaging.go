// Package imaging resizes frames on disk and prepares them for vision models.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forPelevin/vidqa/internal/types"
	"golang.org/x/image/draw"
)

const jpegQuality = 90

// Downsample shrinks the image at path by factor in both dimensions and
// rewrites it in place, keeping its format.
func Downsample(path string, factor int) error {
	if factor < 2 {
		return fmt.Errorf("downsample factor must be >= 2, got %d", factor)
	}
	src, format, err := decodeFile(path)
	if err != nil {
		return err
	}
	b := src.Bounds()
	w, h := max(1, b.Dx()/factor), max(1, b.Dy()/factor)
	dst := scale(src, w, h)

	var buf bytes.Buffer
	if err := encode(&buf, dst, format); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeAtomic(path, buf.Bytes())
}

// DownsampleDir downsamples every jpg/png file directly inside dir and
// returns how many were rewritten.
func DownsampleDir(dir string, factor int) (int, error) {
	names, err := ListImages(dir)
	if err != nil {
		return 0, err
	}
	for i, n := range names {
		if err := Downsample(filepath.Join(dir, n), factor); err != nil {
			return i, err
		}
	}
	return len(names), nil
}

// ListImages returns the sorted names of the jpg/png files directly inside dir.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadForModel reads an image for a vision request. When maxEdge > 0 and the
// image is larger, it is shrunk so its longest edge is maxEdge and re-encoded
// as JPEG; otherwise the file bytes are returned unchanged.
func LoadForModel(path string, maxEdge int) (types.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Image{}, err
	}
	if maxEdge <= 0 {
		return types.Image{MIME: mimeOf(path), Data: raw}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return types.Image{}, fmt.Errorf("decode %s: %w", path, err)
	}
	b := src.Bounds()
	longest := max(b.Dx(), b.Dy())
	if longest <= maxEdge {
		return types.Image{MIME: mimeOf(path), Data: raw}, nil
	}
	w := max(1, b.Dx()*maxEdge/longest)
	h := max(1, b.Dy()*maxEdge/longest)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scale(src, w, h), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return types.Image{}, err
	}
	return types.Image{MIME: "image/jpeg", Data: buf.Bytes()}, nil
}

func scale(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return img, format, nil
}

func encode(buf *bytes.Buffer, img image.Image, format string) error {
	if format == "png" {
		return png.Encode(buf, img)
	}
	return jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality})
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".resize-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func mimeOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}
