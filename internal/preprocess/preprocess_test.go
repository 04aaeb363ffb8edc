package preprocess

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/nfnt/resize"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func filled(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDataURIPrefixAndRawDecodeToSameBytes(t *testing.T) {
	raw := encodePNG(t, filled(4, 4, color.White))
	encoded := base64.StdEncoding.EncodeToString(raw)

	withPrefix, err := DecodePayload("data:image/png;base64," + encoded)
	if err != nil {
		t.Fatalf("unexpected error with prefix: %v", err)
	}
	withoutPrefix, err := DecodePayload(encoded)
	if err != nil {
		t.Fatalf("unexpected error without prefix: %v", err)
	}
	if !bytes.Equal(withPrefix, withoutPrefix) || !bytes.Equal(withPrefix, raw) {
		t.Fatal("expected prefixed and raw payloads to decode to the original bytes")
	}
}

func TestStripDataURISplitsOnFirstComma(t *testing.T) {
	tests := map[string]string{
		"data:image/png;base64,QUJD": "QUJD",
		"QUJD":                       "QUJD",
		"a,b,c":                      "b,c",
		",":                          "",
	}
	for in, want := range tests {
		if got := StripDataURI(in); got != want {
			t.Errorf("StripDataURI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"empty", "", ErrEmptyPayload},
		{"prefix only", "data:image/png;base64,", ErrEmptyPayload},
		{"whitespace only", "   \n", ErrEmptyPayload},
		{"bad characters", "data:image/png;base64,@@@@", ErrInvalidBase64},
		{"single character", "Q", ErrInvalidBase64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.payload)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodePayloadToleratesWrappingAndMissingPadding(t *testing.T) {
	data, err := DecodePayload("QUJD\nREVG\r\n")
	if err != nil || string(data) != "ABCDEF" {
		t.Fatalf("expected ABCDEF, got %q (%v)", data, err)
	}
	data, err = DecodePayload("QUI")
	if err != nil || string(data) != "AB" {
		t.Fatalf("expected AB from unpadded input, got %q (%v)", data, err)
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	if _, err := DecodeImage([]byte("definitely not an image")); !errors.Is(err, ErrUndecodableImage) {
		t.Fatalf("expected ErrUndecodableImage, got %v", err)
	}
}

// pngHeaderOnly returns a PNG signature and IHDR chunk declaring a w x h grayscale image
// with no pixel data behind it.
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter and interlace stay 0

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestFromBytesRejectsOversizedDimensionsBeforeDecoding(t *testing.T) {
	_, err := FromBytes(pngHeaderOnly(8000, 8000), DefaultOptions())
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}

	_, err = FromBytes(pngHeaderOnly(28, 100000), DefaultOptions())
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected tall images to be rejected too, got %v", err)
	}
}

func TestFromBytesHonoursMaxDimension(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDimension = 64

	if _, err := FromBytes(encodePNG(t, filled(100, 10, color.White)), opts); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge for 100x10 with limit 64, got %v", err)
	}
	if _, err := FromBytes(encodePNG(t, filled(64, 64, color.White)), opts); err != nil {
		t.Fatalf("expected an image at the limit to pass, got %v", err)
	}

	opts.MaxDimension = 0
	if _, err := FromBytes(encodePNG(t, filled(100, 10, color.White)), opts); err != nil {
		t.Fatalf("expected no limit when MaxDimension is 0, got %v", err)
	}
}

func TestCheckDimensionsRejectsGarbage(t *testing.T) {
	if err := CheckDimensions([]byte("not an image"), 4096); !errors.Is(err, ErrUndecodableImage) {
		t.Fatalf("expected ErrUndecodableImage, got %v", err)
	}
}

func TestBlankWhiteImageBecomesZeroTensor(t *testing.T) {
	for _, size := range []image.Point{{28, 28}, {280, 280}, {100, 60}} {
		tensor, err := FromBytes(encodePNG(t, filled(size.X, size.Y, color.White)), DefaultOptions())
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", size, err)
		}
		for i, v := range tensor.Data {
			if v != 0 {
				t.Fatalf("%v: expected all zeros, got %f at %d", size, v, i)
			}
		}
	}
}

func TestBlackImageBecomesOnesTensor(t *testing.T) {
	tensor := Normalize(filled(50, 50, color.Black), DefaultOptions())
	for i, v := range tensor.Data {
		if v != 1 {
			t.Fatalf("expected all ones, got %f at %d", v, i)
		}
	}
}

func TestNormalizeShapeAndRangeForArbitrarySizes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sizes := []image.Point{{1, 1}, {1, 40}, {3, 97}, {28, 28}, {300, 200}}

	for _, size := range sizes {
		img := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
		for i := range img.Pix {
			img.Pix[i] = uint8(rng.Intn(256))
		}

		tensor := Normalize(img, DefaultOptions())

		wantShape := []int64{1, 28, 28, 1}
		if len(tensor.Shape) != len(wantShape) {
			t.Fatalf("%v: unexpected shape %v", size, tensor.Shape)
		}
		for i := range wantShape {
			if tensor.Shape[i] != wantShape[i] {
				t.Fatalf("%v: expected shape %v, got %v", size, wantShape, tensor.Shape)
			}
		}
		if len(tensor.Data) != 28*28 {
			t.Fatalf("%v: expected 784 values, got %d", size, len(tensor.Data))
		}
		for i, v := range tensor.Data {
			if v < 0 || v > 1 {
				t.Fatalf("%v: value %f out of range at %d", size, v, i)
			}
		}
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	img := filled(64, 64, color.White)
	for y := 20; y < 44; y++ {
		img.Set(32, y, color.Black)
		img.Set(33, y, color.Black)
	}

	first := Normalize(img, DefaultOptions())
	second := Normalize(img, DefaultOptions())
	for i := range first.Data {
		if first.Data[i] != second.Data[i] {
			t.Fatalf("tensors differ at %d: %f vs %f", i, first.Data[i], second.Data[i])
		}
	}
}

func TestNormalizeKeepsRowMajorLayout(t *testing.T) {
	img := filled(28, 28, color.White)
	img.Set(5, 7, color.Black)

	opts := DefaultOptions()
	opts.Filter = resize.NearestNeighbor
	tensor := Normalize(img, opts)

	for i, v := range tensor.Data {
		want := float32(0)
		if i == 7*28+5 {
			want = 1
		}
		if v != want {
			t.Fatalf("expected %f at %d, got %f", want, i, v)
		}
	}
}

func TestNormalizeWithoutInversion(t *testing.T) {
	opts := DefaultOptions()
	opts.Invert = false
	tensor := Normalize(filled(10, 10, color.White), opts)
	for i, v := range tensor.Data {
		if v != 1 {
			t.Fatalf("expected white to map to 1 without inversion, got %f at %d", v, i)
		}
	}
}

func TestGrayscaleIgnoresAlphaAndUsesLuma(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 128})
	img.Set(2, 0, color.NRGBA{})

	gray := Grayscale(img)
	if got := gray.GrayAt(0, 0).Y; got != 76 {
		t.Errorf("expected red to map to 76, got %d", got)
	}
	if got := gray.GrayAt(1, 0).Y; got != 255 {
		t.Errorf("expected half-transparent white to stay 255, got %d", got)
	}
	if got := gray.GrayAt(2, 0).Y; got != 0 {
		t.Errorf("expected transparent black to map to 0, got %d", got)
	}
}

func TestGrayscaleRebasesBounds(t *testing.T) {
	img := image.NewGray(image.Rect(10, 10, 12, 12))
	img.SetGray(11, 11, color.Gray{Y: 200})

	gray := Grayscale(img)
	if gray.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("unexpected bounds %v", gray.Bounds())
	}
	if got := gray.GrayAt(1, 1).Y; got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
}

func TestParseFilter(t *testing.T) {
	filter, err := ParseFilter(" Bicubic ")
	if err != nil || filter != resize.Bicubic {
		t.Fatalf("expected bicubic, got %v (%v)", filter, err)
	}
	if _, err := ParseFilter("gaussian"); err == nil {
		t.Fatal("expected error for unknown filter")
	}
}
