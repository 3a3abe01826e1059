package analyzers

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/visual-aoi/internal/products"
)

func solidCrop(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestBarcodeAnalyzerPassesOnNonEmptyValue(t *testing.T) {
	a := BarcodeAnalyzer{Decoder: Simulated{}}
	crop := solidCrop(10, 10, color.RGBA{R: 1, G: 1, B: 1, A: 255})
	out := a.Analyze(context.Background(), products.ROI{Type: products.Barcode}, crop)
	require.NoError(t, out.Err)
	assert.True(t, out.Passed)
	assert.NotEmpty(t, out.Payload.BarcodeValues)
}

func TestOCRAnalyzerValidatesExpectedText(t *testing.T) {
	a := OCRAnalyzer{Engine: Simulated{}}
	crop := solidCrop(10, 10, color.RGBA{R: 200, G: 200, B: 200, A: 255})

	expected := "SIMULATED"
	out := a.Analyze(context.Background(), products.ROI{Type: products.OCR, ExpectedText: &expected}, crop)
	require.NoError(t, out.Err)
	assert.True(t, out.Passed)
	assert.Contains(t, out.Payload.OCRText, "[PASS:")
}

func TestOCRAnalyzerFailsOnMismatch(t *testing.T) {
	a := OCRAnalyzer{Engine: Simulated{}}
	crop := solidCrop(10, 10, color.RGBA{R: 200, G: 200, B: 200, A: 255})

	expected := "NOT PRESENT"
	out := a.Analyze(context.Background(), products.ROI{Type: products.OCR, ExpectedText: &expected}, crop)
	require.NoError(t, out.Err)
	assert.False(t, out.Passed)
	assert.Contains(t, out.Payload.OCRText, "[FAIL:")
}

func TestColorAnalyzerSimpleModePass(t *testing.T) {
	target := [3]int{200, 10, 10}
	tolerance := 5
	minPct := 90.0
	cc := &products.ColorConfig{ExpectedColor: &target, ColorTolerance: &tolerance, MinPixelPercentage: &minPct}

	a := ColorAnalyzer{}
	crop := solidCrop(10, 10, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	out := a.Analyze(context.Background(), products.ROI{Type: products.Color, ColorConfig: cc}, crop)
	require.NoError(t, out.Err)
	assert.True(t, out.Passed)
	assert.InDelta(t, 100.0, out.Payload.MatchPercentage, 0.01)
}

func TestColorAnalyzerSimpleModeFail(t *testing.T) {
	target := [3]int{0, 0, 0}
	tolerance := 5
	minPct := 90.0
	cc := &products.ColorConfig{ExpectedColor: &target, ColorTolerance: &tolerance, MinPixelPercentage: &minPct}

	a := ColorAnalyzer{}
	crop := solidCrop(10, 10, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	out := a.Analyze(context.Background(), products.ROI{Type: products.Color, ColorConfig: cc}, crop)
	require.NoError(t, out.Err)
	assert.False(t, out.Passed)
}

func TestColorAnalyzerLegacyRanges(t *testing.T) {
	cc := &products.ColorConfig{
		ColorRanges: []products.ColorRange{
			{Name: "red", Lower: [3]int{150, 0, 0}, Upper: [3]int{255, 50, 50}, ColorSpace: "RGB", Threshold: 50},
		},
	}
	a := ColorAnalyzer{}
	crop := solidCrop(10, 10, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	out := a.Analyze(context.Background(), products.ROI{Type: products.Color, ColorConfig: cc}, crop)
	require.NoError(t, out.Err)
	assert.Equal(t, "red", out.Payload.DetectedColor)
	assert.True(t, out.Passed)
}

func TestColorAnalyzerMissingConfigErrors(t *testing.T) {
	a := ColorAnalyzer{}
	crop := solidCrop(2, 2, color.RGBA{})
	out := a.Analyze(context.Background(), products.ROI{Type: products.Color}, crop)
	require.Error(t, out.Err)
}
