package dataset

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Accessor resolves examples of one split into samples.
type Accessor interface {
	Get(i int) (Sample, error)
	Len() int
}

// ImageDataset reads images from disk on every access; nothing is cached.
type ImageDataset struct {
	imagesDir string
	examples  []LabeledExample
	size      int
}

func NewImageDataset(imagesDir string, examples []LabeledExample, size int) *ImageDataset {
	return &ImageDataset{
		imagesDir: imagesDir,
		examples:  examples,
		size:      size,
	}
}

func (ds *ImageDataset) Len() int {
	return len(ds.examples)
}

func (ds *ImageDataset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(ds.examples) {
		return Sample{}, &DataAccessError{Path: ds.imagesDir,
			Err: fmt.Errorf("index %d out of range [0, %d)", i, len(ds.examples))}
	}

	example := ds.examples[i]
	path := filepath.Join(ds.imagesDir, example.Image)

	tensor, err := LoadTensor(path, ds.size)
	if err != nil {
		return Sample{}, err
	}

	return Sample{Tensor: tensor, Label: example.Category.Label()}, nil
}

// LoadTensor decodes the image at path, resizes it to size x size with
// bilinear interpolation, converts it to luminance and scales it to [0, 1].
func LoadTensor(path string, size int) (Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tensor{}, &DataAccessError{Path: path, Err: err}
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return Tensor{}, &DataAccessError{Path: path, Err: errors.Wrap(err, "decode image")}
	}

	return ToTensor(src, size), nil
}

// ToTensor resizes src to size x size, then converts it to grayscale in
// [0, 1]. Alpha is ignored: transparent pixels keep their stored colour.
func ToTensor(src image.Image, size int) Tensor {
	opaque := dropAlpha(src)
	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(resized, resized.Bounds(), opaque, opaque.Bounds(), draw.Src, nil)

	t := NewTensor(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := resized.PixOffset(x, y)
			r := uint32(resized.Pix[off])
			g := uint32(resized.Pix[off+1])
			b := uint32(resized.Pix[off+2])
			// ITU-R 601-2 luma, rounded
			l := (r*299 + g*587 + b*114 + 500) / 1000
			t.Data[y*size+x] = float32(l) / 255
		}
	}

	return t
}

// dropAlpha copies src into an opaque NRGBA image, keeping the
// non-premultiplied colour of every pixel.
func dropAlpha(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], n.Pix[n.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	} else {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				dst.SetNRGBA(x, y, c)
			}
		}
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
