package dataset

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, fill color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	f, err := os.Create(path)
	require.Nil(t, err)
	defer f.Close()
	require.Nil(t, png.Encode(f, img))
}

// writeDataDir creates labels.csv and one small image per example under dir.
func writeDataDir(t *testing.T, dir string, n int) []LabeledExample {
	t.Helper()
	require.Nil(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))

	examples := make([]LabeledExample, n)
	var b strings.Builder
	b.WriteString("image,category\n")
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%04d.png", i)
		cat := Category(i%NumCategories + 1)
		examples[i] = LabeledExample{Image: name, Category: cat}
		fmt.Fprintf(&b, "%s,%d\n", name, cat)
		shade := uint8(i * 40 % 256)
		writePNG(t, filepath.Join(dir, "images", name), 20, 12, color.RGBA{shade, shade, shade, 255})
	}
	require.Nil(t, os.WriteFile(filepath.Join(dir, "labels.csv"), []byte(b.String()), 0o644))

	return examples
}

func makeExamples(n int) []LabeledExample {
	examples := make([]LabeledExample, n)
	for i := range examples {
		examples[i] = LabeledExample{Image: fmt.Sprintf("%d.jpg", i), Category: Category(i%NumCategories + 1)}
	}
	return examples
}
