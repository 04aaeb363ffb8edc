package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

var (
	ErrUndecodableImage = errors.New("image could not be decoded")
	ErrImageTooLarge    = errors.New("image dimensions exceed the allowed maximum")
)

// Options controls how an image becomes a model input. MaxDimension caps the width and
// height accepted by FromBytes; zero disables the check.
type Options struct {
	Size         int
	Filter       resize.InterpolationFunction
	Invert       bool
	MaxDimension int
}

// DefaultOptions matches the MNIST convention: 28x28, bicubic, light ink on dark background.
func DefaultOptions() Options {
	return Options{
		Size:         28,
		Filter:       resize.Bicubic,
		Invert:       true,
		MaxDimension: 4096,
	}
}

// Tensor is a flat NHWC float32 buffer plus its shape.
type Tensor struct {
	Data  []float32
	Shape []int64
}

var filters = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// ParseFilter maps a filter name to an nfnt/resize interpolation function.
func ParseFilter(name string) (resize.InterpolationFunction, error) {
	filter, ok := filters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown resample filter %q", name)
	}
	return filter, nil
}

// CheckDimensions reads only the image header and rejects images wider or taller than
// maxDimension, so oversized canvases are refused before any pixel buffer is allocated.
func CheckDimensions(data []byte, maxDimension int) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	if cfg.Width > maxDimension || cfg.Height > maxDimension {
		return fmt.Errorf("%w: %dx%d, limit %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height, maxDimension, maxDimension)
	}
	return nil
}

// DecodeImage decodes PNG, JPEG, GIF, BMP or TIFF bytes, applying EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	if b := img.Bounds(); b.Dx() < 1 || b.Dy() < 1 {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrUndecodableImage, b)
	}
	return img, nil
}

// Grayscale converts img to 8-bit luminance using the ITU-R 601-2 weights on
// non-premultiplied RGB; alpha is dropped rather than blended.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			gray.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: luma(c.R, c.G, c.B)})
		}
	}
	return gray
}

func luma(r, g, b uint8) uint8 {
	// 0.299, 0.587, 0.114 in 16.16 fixed point; the weights sum to 1<<16.
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 1<<15) >> 16)
}

// Normalize runs grayscale, resize, inversion and scaling, and returns a
// (1, size, size, 1) tensor with values in [0, 1].
func Normalize(img image.Image, opts Options) Tensor {
	if opts.Size <= 0 {
		opts.Size = DefaultOptions().Size
	}
	size := opts.Size

	resized := resize.Resize(uint(size), uint(size), Grayscale(img), opts.Filter)
	b := resized.Bounds()

	data := make([]float32, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := color.GrayModel.Convert(resized.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			if opts.Invert {
				v = 255 - v
			}
			data[y*size+x] = float32(v) / 255.0
		}
	}

	return Tensor{
		Data:  data,
		Shape: []int64{1, int64(size), int64(size), 1},
	}
}

// FromBytes checks the header against opts.MaxDimension, then decodes data and
// normalizes the resulting image.
func FromBytes(data []byte, opts Options) (Tensor, error) {
	if opts.MaxDimension > 0 {
		if err := CheckDimensions(data, opts.MaxDimension); err != nil {
			return Tensor{}, err
		}
	}
	img, err := DecodeImage(data)
	if err != nil {
		return Tensor{}, err
	}
	return Normalize(img, opts), nil
}
