package analyzers

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/visual-aoi/internal/imaging"
	"github.com/technosupport/visual-aoi/internal/products"
)

type fakeGoldenSource struct {
	files []GoldenFile
	err   error
}

func (f fakeGoldenSource) ListGoldens(product string, roiID int) ([]GoldenFile, error) {
	return f.files, f.err
}

func writeGolden(t *testing.T, dir, name string, c color.RGBA) GoldenFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, imaging.Encode(f, img))
	return GoldenFile{Name: name, Path: path}
}

func TestCompareAnalyzerNoGoldensIsDifferent(t *testing.T) {
	a := CompareAnalyzer{Extractor: Simulated{}, Goldens: fakeGoldenSource{}}
	threshold := 0.5
	crop := solidCrop(8, 8, color.RGBA{R: 100, G: 100, B: 100, A: 255})

	outcome, cmd := a.AnalyzeCompare(context.Background(), "widget-a", products.ROI{Idx: 1, AIThreshold: &threshold}, crop)
	assert.Equal(t, "Different", outcome.Payload.MatchResult)
	assert.Equal(t, 0.0, outcome.Payload.AISimilarity)
	assert.False(t, outcome.Passed)
	assert.Zero(t, cmd)
}

func TestCompareAnalyzerMatchesBestGoldenNoPromotion(t *testing.T) {
	dir := t.TempDir()
	best := writeGolden(t, dir, "best_golden.jpg", color.RGBA{R: 100, G: 100, B: 100, A: 255})

	a := CompareAnalyzer{Extractor: Simulated{}, Goldens: fakeGoldenSource{files: []GoldenFile{best}}}
	threshold := 0.1
	crop := solidCrop(8, 8, color.RGBA{R: 100, G: 100, B: 100, A: 255})

	outcome, cmd := a.AnalyzeCompare(context.Background(), "widget-a", products.ROI{Idx: 1, AIThreshold: &threshold, FeatureMethod: "mobilenet"}, crop)
	assert.Equal(t, "Match", outcome.Payload.MatchResult)
	assert.True(t, outcome.Passed)
	assert.Zero(t, cmd, "matching the best golden should not trigger promotion")
}

func TestCompareAnalyzerPromotesMatchingAlternative(t *testing.T) {
	dir := t.TempDir()
	best := writeGolden(t, dir, "best_golden.jpg", color.RGBA{R: 0, G: 0, B: 0, A: 255})
	alt := writeGolden(t, dir, "original_111_old_best.jpg", color.RGBA{R: 100, G: 100, B: 100, A: 255})

	a := CompareAnalyzer{Extractor: Simulated{}, Goldens: fakeGoldenSource{files: []GoldenFile{best, alt}}}
	// the black best still scores ~0.57 against the gray crop (the
	// simulated feature vector's shape component is shared), so the
	// threshold must sit above that for the best to miss
	threshold := 0.9
	crop := solidCrop(8, 8, color.RGBA{R: 100, G: 100, B: 100, A: 255})

	outcome, cmd := a.AnalyzeCompare(context.Background(), "widget-a", products.ROI{Idx: 1, AIThreshold: &threshold, FeatureMethod: "mobilenet"}, crop)
	assert.Equal(t, "Match", outcome.Payload.MatchResult)
	assert.True(t, outcome.Passed)
	require.NotZero(t, cmd)
	assert.Equal(t, alt.Name, cmd.Alternative)
	assert.Equal(t, "widget-a", cmd.Product)
}
