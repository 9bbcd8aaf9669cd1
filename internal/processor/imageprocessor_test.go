package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTestPNG renders a white receipt-shaped image with a black band at the
// given vertical percent, so crops can be checked by pixel content
func makeTestPNG(t *testing.T, width, height int, bandAtPercent float64) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bandY := int(float64(height) * bandAtPercent / 100.0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y >= bandY && y < bandY+4 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCropVerticalSlice(t *testing.T) {
	data := makeTestPNG(t, 100, 400, 50)

	t.Run("Should crop the requested y-range at full width", func(t *testing.T) {
		cropped, mime, err := CropVerticalSlice(data, "image/png", 25, 75)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)

		img, err := imaging.Decode(bytes.NewReader(cropped))
		require.NoError(t, err)
		assert.Equal(t, 100, img.Bounds().Dx())
		assert.Equal(t, 200, img.Bounds().Dy())
	})

	t.Run("Should keep the band pixels inside a crop that covers them", func(t *testing.T) {
		cropped, _, err := CropVerticalSlice(data, "image/png", 40, 60)
		require.NoError(t, err)

		img, err := imaging.Decode(bytes.NewReader(cropped))
		require.NoError(t, err)

		foundDark := false
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y && !foundDark; y++ {
			r, g, b, _ := img.At(bounds.Min.X+10, y).RGBA()
			if r>>8 < 64 && g>>8 < 64 && b>>8 < 64 {
				foundDark = true
			}
		}
		assert.True(t, foundDark, "black band should survive the crop")
	})

	t.Run("Should reject invalid ranges", func(t *testing.T) {
		_, _, err := CropVerticalSlice(data, "image/png", -1, 50)
		assert.Error(t, err)
		_, _, err = CropVerticalSlice(data, "image/png", 0, 101)
		assert.Error(t, err)
		_, _, err = CropVerticalSlice(data, "image/png", 60, 40)
		assert.Error(t, err)
	})

	t.Run("Should reject non-image bytes", func(t *testing.T) {
		_, _, err := CropVerticalSlice([]byte("not an image"), "image/jpeg", 0, 50)
		assert.Error(t, err)
	})
}

func TestPreprocessImage(t *testing.T) {
	t.Run("Should return processed bytes for a valid image", func(t *testing.T) {
		data := makeTestPNG(t, 100, 400, 50)
		processed, mime, err := PreprocessImage(data, "image/png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)
		assert.NotEmpty(t, processed)
	})

	t.Run("Should fall back to jpeg for unknown mime types", func(t *testing.T) {
		data := makeTestPNG(t, 100, 400, 50)
		_, mime, err := PreprocessImage(data, "image/webp")
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", mime)
	})

	t.Run("Should error on undecodable input", func(t *testing.T) {
		_, _, err := PreprocessImage([]byte("garbage"), "image/jpeg")
		assert.Error(t, err)
	})
}

func TestResizeToMaxDimension(t *testing.T) {
	t.Run("Should leave small images untouched", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 100, 200))
		resized := resizeToMaxDimension(img, 2500)
		assert.Equal(t, 200, resized.Bounds().Dy())
	})

	t.Run("Should shrink the longest side to the cap", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 100, 5000))
		resized := resizeToMaxDimension(img, 2500)
		assert.Equal(t, 2500, resized.Bounds().Dy())
	})
}
