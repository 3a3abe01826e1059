package analyzers

import (
	"bytes"
	"context"
	"image"
	"log"
	"os"

	"github.com/technosupport/visual-aoi/internal/apierrors"
	"github.com/technosupport/visual-aoi/internal/imaging"
	"github.com/technosupport/visual-aoi/internal/products"
)

// GoldenFile describes one candidate golden sample read from disk, in
// scan order (best first, per spec §4.4 step 2).
type GoldenFile struct {
	Name string
	Path string
}

// GoldenSource lists and loads the goldens for a Compare ROI. Kept as
// an interface so the analyzer never touches internal/golden directly
// — it only asks for bytes, matching the "analyzers stay pure" design
// note (promotion is issued as a command, not performed here).
type GoldenSource interface {
	ListGoldens(product string, roiID int) ([]GoldenFile, error)
}

// PromoteCommand is returned alongside a Compare outcome when a
// non-best alternative should be promoted (spec §4.4 step 5-6). The
// caller (internal/api's processROI) executes it against
// internal/golden; the
// analyzer itself never mutates the library.
type PromoteCommand struct {
	Product     string
	ROIID       int
	Alternative string
}

// CompareAnalyzer implements the golden-sample comparison pipeline
// (spec §4.4 Compare analyzer).
type CompareAnalyzer struct {
	Extractor FeatureExtractor
	Goldens   GoldenSource
}

// AnalyzeCompare runs the full algorithm and additionally returns a
// PromoteCommand (zero-value Product means "no promotion needed"),
// since Outcome alone has no room for a side-channel command.
func (a CompareAnalyzer) AnalyzeCompare(ctx context.Context, product string, roi products.ROI, crop image.Image) (Outcome, PromoteCommand) {
	threshold := 0.0
	if roi.AIThreshold != nil {
		threshold = *roi.AIThreshold
	}

	normalizedLive := imaging.NormalizeIllumination(crop)
	liveFeatures, err := a.Extractor.Extract(ctx, normalizedLive, roi.FeatureMethod)
	if err != nil {
		return Outcome{Crop: crop, Err: apierrors.Wrap(apierrors.Unavailable, "feature extractor", err)}, PromoteCommand{}
	}

	goldens, err := a.Goldens.ListGoldens(product, roi.Idx)
	if err != nil || len(goldens) == 0 {
		// spec §4.4 edge case: no goldens -> Different with similarity 0
		return Outcome{
			Payload:       Payload{MatchResult: "Different", AISimilarity: 0, Threshold: threshold},
			Crop:          crop,
			DominantColor: imaging.DominantChannel(crop),
			Passed:        false,
		}, PromoteCommand{}
	}

	b := crop.Bounds()
	bestSim := 0.0
	bestName := ""
	bestSimForFirst := 0.0
	matched := false
	var matchedName string
	var matchedSim float64

	for i, g := range goldens {
		data, err := os.ReadFile(g.Path)
		if err != nil {
			log.Printf("[compare] skipping unreadable golden %s: %v", g.Path, err)
			continue
		}
		gimg, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			log.Printf("[compare] skipping undecodable golden %s: %v", g.Path, err)
			continue
		}

		resized := imaging.Resize(gimg, b.Dx(), b.Dy())
		normalized := imaging.NormalizeIllumination(resized)
		features, err := a.Extractor.Extract(ctx, normalized, roi.FeatureMethod)
		if err != nil {
			continue
		}

		sim := imaging.CosineSimilarity(liveFeatures, features)
		if i == 0 {
			bestSimForFirst = sim
		}
		if sim > bestSim {
			bestSim = sim
			bestName = g.Name
		}
		if sim >= threshold {
			matched = true
			matchedName = g.Name
			matchedSim = sim
			break // stop scanning remaining alternatives (spec §4.4 step 4)
		}
	}

	result := "Different"
	reportedSim := bestSim
	reportedName := bestName
	if matched {
		result = "Match"
		reportedSim = matchedSim
		reportedName = matchedName
	}

	outcome := Outcome{
		Payload: Payload{
			MatchResult:   result,
			AISimilarity:  reportedSim,
			Threshold:     threshold,
			MatchedGolden: reportedName,
		},
		Crop:          crop,
		DominantColor: imaging.DominantChannel(crop),
		Passed:        matched,
	}

	// promote a non-best alternative that matched, or one that simply
	// outscored the current best even without matching (spec §4.4
	// steps 5-6: "self-tuning feedback loop")
	var cmd PromoteCommand
	if reportedName != "" && reportedName != goldens[0].Name && reportedSim > bestSimForFirst {
		cmd = PromoteCommand{Product: product, ROIID: roi.Idx, Alternative: reportedName}
	}
	return outcome, cmd
}
