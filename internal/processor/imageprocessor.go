// imageprocessor.go - Image preprocessing and vertical chunk cropping

package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/bosocmputer/receipt_scan_gemini/configs"
	"github.com/disintegration/imaging"
)

// PreprocessImage enhances a receipt photo for better recognition accuracy.
// The enhancement level adapts to a quality score of the input: poor photos
// get aggressive sharpening/contrast, good ones a light touch. Returns the
// processed bytes and mime type.
func PreprocessImage(data []byte, mimeType string) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	qualityScore := analyzeImageQuality(img)
	img = resizeToMaxDimension(img, maxDimension())

	switch {
	case qualityScore < 50:
		img = applyAggressiveEnhancement(img)
	case qualityScore < 75:
		img = applyStandardEnhancement(img)
	default:
		img = applyLightEnhancement(img)
	}

	// Final sharpening pass helps small receipt fonts
	img = imaging.Sharpen(img, 1.0)

	return encodeImage(img, mimeType)
}

// CropVerticalSlice cuts the y-percent range [yStart, yEnd] out of the
// receipt image for a single chunk extraction call. Full width is kept -
// receipts are narrow and the columns matter.
func CropVerticalSlice(data []byte, mimeType string, yStartPercent, yEndPercent float64) ([]byte, string, error) {
	if yStartPercent < 0 || yEndPercent > 100 || yStartPercent >= yEndPercent {
		return nil, "", fmt.Errorf("invalid slice range: %.1f-%.1f", yStartPercent, yEndPercent)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image for cropping: %w", err)
	}

	bounds := img.Bounds()
	height := bounds.Dy()
	yStart := bounds.Min.Y + int(math.Floor(float64(height)*yStartPercent/100.0))
	yEnd := bounds.Min.Y + int(math.Ceil(float64(height)*yEndPercent/100.0))
	if yEnd > bounds.Max.Y {
		yEnd = bounds.Max.Y
	}
	if yEnd-yStart < 1 {
		return nil, "", fmt.Errorf("slice %.1f-%.1f maps to an empty region", yStartPercent, yEndPercent)
	}

	cropped := imaging.Crop(img, image.Rect(bounds.Min.X, yStart, bounds.Max.X, yEnd))
	return encodeImage(cropped, mimeType)
}

// analyzeImageQuality samples pixels and scores brightness/contrast (0-100)
func analyzeImageQuality(img image.Image) float64 {
	bounds := img.Bounds()

	var totalBrightness float64
	var minBrightness float64 = 255
	var maxBrightness float64 = 0
	pixelCount := 0

	// Sample every 10th pixel for performance
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0

			totalBrightness += brightness
			if brightness < minBrightness {
				minBrightness = brightness
			}
			if brightness > maxBrightness {
				maxBrightness = brightness
			}
			pixelCount++
		}
	}

	if pixelCount == 0 {
		return 0
	}

	avgBrightness := totalBrightness / float64(pixelCount)
	contrast := maxBrightness - minBrightness

	// Ideal: avgBrightness ~128, contrast 200+
	brightnessScore := 100.0 - math.Abs(avgBrightness-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)

	return (brightnessScore * 0.4) + (contrastScore * 0.6)
}

func resizeToMaxDimension(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxDim && height <= maxDim {
		return img
	}
	if width > height {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

func maxDimension() int {
	if configs.MAX_IMAGE_DIMENSION > 0 {
		return configs.MAX_IMAGE_DIMENSION
	}
	return 2500
}

// applyLightEnhancement for good quality images
func applyLightEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 2.0)
	result = imaging.AdjustContrast(result, 30)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 20)
	result = imaging.AdjustGamma(result, 1.05)
	return result
}

// applyStandardEnhancement for medium quality images
func applyStandardEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 3.0)
	result = imaging.AdjustContrast(result, 45)
	result = imaging.AdjustBrightness(result, 15)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 35)
	result = imaging.AdjustGamma(result, 1.15)
	return result
}

// applyAggressiveEnhancement for poor quality images
func applyAggressiveEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 4.0)
	result = imaging.AdjustContrast(result, 60)
	result = imaging.AdjustBrightness(result, 25)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 55)
	result = imaging.AdjustGamma(result, 1.3)
	// Blur then re-sharpen knocks out sensor noise without losing edges
	result = imaging.Blur(result, 0.5)
	result = imaging.Sharpen(result, 2.5)
	result = imaging.AdjustContrast(result, 20)
	return result
}

func encodeImage(img image.Image, mimeType string) ([]byte, string, error) {
	var buf bytes.Buffer
	var err error

	switch mimeType {
	case "image/png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
		mimeType = "image/jpeg"
	}

	if err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), mimeType, nil
}
