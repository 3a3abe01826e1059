package api

import (
	"context"
	"image"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/visual-aoi/internal/aggregator"
	"github.com/technosupport/visual-aoi/internal/analyzers"
	"github.com/technosupport/visual-aoi/internal/auditlog"
	"github.com/technosupport/visual-aoi/internal/eventbus"
	"github.com/technosupport/visual-aoi/internal/golden"
	"github.com/technosupport/visual-aoi/internal/metrics"
	"github.com/technosupport/visual-aoi/internal/orchestrator"
	"github.com/technosupport/visual-aoi/internal/products"
)

// compareGoldenAdapter implements analyzers.GoldenSource over a
// golden.Library without the analyzers package ever importing golden
// directly (spec §9 "analyzers stay pure").
type compareGoldenAdapter struct{ lib *golden.Library }

func (a compareGoldenAdapter) ListGoldens(product string, roiID int) ([]analyzers.GoldenFile, error) {
	samples, err := a.lib.List(product, roiID)
	if err != nil {
		return nil, err
	}
	dir := a.lib.Dir(product, roiID)
	files := make([]analyzers.GoldenFile, 0, len(samples))
	for _, s := range samples {
		files = append(files, analyzers.GoldenFile{Name: s.Name, Path: filepath.Join(dir, s.Name)})
	}
	return files, nil
}

func roiTypeName(t products.ROIType) string {
	switch t {
	case products.Barcode:
		return "Barcode"
	case products.Compare:
		return "Compare"
	case products.OCR:
		return "OCR"
	case products.Color:
		return "Color"
	default:
		return "Unknown"
	}
}

// resolveImageRef loads an image either from an absolute/client-mount
// path or from the session's input directory (spec §6).
func (s *Server) resolveImageRef(sessionID uuid.UUID, ref string) (image.Image, error) {
	if ref == "" {
		return nil, nil
	}
	if looksAbsolute(ref) {
		loaded, err := s.FS.LoadAbsolute(ref)
		if err != nil {
			return nil, err
		}
		return loaded.Image, nil
	}
	loaded, err := s.FS.LoadInput(sessionID, ref)
	if err != nil {
		return nil, err
	}
	return loaded.Image, nil
}

func looksAbsolute(ref string) bool {
	return len(ref) > 0 && (ref[0] == '/' || ref[0] == '\\')
}

// processROI runs the type-dispatched analyzer pipeline for one ROI
// against its group's already-loaded image (spec §4.4), persisting the
// resulting crops best-effort (spec §4.1 policy: write failures during
// result export are non-fatal).
func (s *Server) processROI(sessionID uuid.UUID, productName string, colorFallback *products.ColorConfig) orchestrator.ProcessFunc {
	return func(ctx context.Context, item orchestrator.WorkItem) any {
		start := time.Now()
		crop := orchestrator.CropForROI(item.Image, item.ROI)

		var outcome analyzers.Outcome
		switch item.ROI.Type {
		case products.Barcode:
			outcome = analyzers.BarcodeAnalyzer{Decoder: s.Decoder}.Analyze(ctx, item.ROI, crop)
		case products.Compare:
			adapter := compareGoldenAdapter{lib: s.Golden}
			ca := analyzers.CompareAnalyzer{Extractor: s.Extractor, Goldens: adapter}
			var cmd analyzers.PromoteCommand
			outcome, cmd = ca.AnalyzeCompare(ctx, productName, item.ROI, crop)
			if cmd.Product != "" {
				if err := s.Golden.Promote(cmd.Product, cmd.ROIID, cmd.Alternative); err != nil {
					log.Printf("[inspect] promote %s roi %d failed: %v", cmd.Product, cmd.ROIID, err)
				} else {
					metrics.RecordGoldenPromotion(cmd.Product)
					if s.Events != nil {
						s.Events.PublishGoldenPromoted(eventbus.GoldenPromotedEvent{
							ProductName: cmd.Product,
							ROIID:       strconv.Itoa(cmd.ROIID),
							GoldenName:  cmd.Alternative,
							Similarity:  outcome.Payload.AISimilarity,
							OccurredAt:  time.Now(),
						})
					}
				}
			}
		case products.OCR:
			outcome = analyzers.OCRAnalyzer{Engine: s.OCR}.Analyze(ctx, item.ROI, crop)
		case products.Color:
			outcome = analyzers.ColorAnalyzer{ProductColorConfig: colorFallback}.Analyze(ctx, item.ROI, crop)
		}

		metrics.RecordAnalyzerLatency(roiTypeName(item.ROI.Type), float64(time.Since(start).Milliseconds()))

		result := aggregator.ROIResult{
			ROIID:              item.ROI.Idx,
			DeviceID:           item.ROI.DeviceLocation,
			ROITypeName:        roiTypeName(item.ROI.Type),
			Coordinates:        [4]int{item.ROI.X1, item.ROI.Y1, item.ROI.X2, item.ROI.Y2},
			IsDeviceBarcodeHit: item.ROI.IsDeviceBarcode,
		}
		if outcome.Err != nil {
			result.Error = outcome.Err.Error()
			result.Passed = false
			return result
		}
		result.Passed = outcome.Passed
		result.Payload = outcome.Payload

		if outcome.Crop != nil {
			if path, err := s.FS.SaveROICrop(sessionID, item.ROI.Idx, outcome.Crop); err != nil {
				log.Printf("[inspect] save roi crop %d failed: %v", item.ROI.Idx, err)
			} else {
				result.ROIImagePath = s.FS.ToClientPath(path)
			}
		}
		if item.ROI.Type == products.Compare && outcome.Payload.MatchResult == "Match" {
			if path, err := s.FS.SaveGoldenCrop(sessionID, item.ROI.Idx, outcome.Crop); err != nil {
				log.Printf("[inspect] save golden crop %d failed: %v", item.ROI.Idx, err)
			} else {
				result.GoldenImagePath = s.FS.ToClientPath(path)
			}
		}
		return result
	}
}

// runInspectionPreloaded fans the ROI work for every already-resolved
// capture group out across the shared pool and aggregates the results
// (spec §4.5). Callers resolve each group's image first, since the two
// inspect endpoints differ only in how they build that map.
func (s *Server) runInspectionPreloaded(ctx context.Context, sessionID uuid.UUID, product products.Product,
	groups map[orchestrator.CaptureKey]orchestrator.CaptureGroup, loaded map[orchestrator.CaptureKey]image.Image,
	req aggregator.InspectRequest) (aggregator.InspectionResult, error) {
	start := time.Now()

	colorFallback, _ := s.Products.LoadColors(product.Name)

	items := orchestrator.BuildWorkItems(groups, loaded)
	metrics.SetQueueDepth(len(items))
	rawResults := orchestrator.Run(ctx, items, s.processROI(sessionID, product.Name, colorFallback))
	metrics.SetQueueDepth(0)

	roiResults := make([]aggregator.ROIResult, 0, len(rawResults))
	for _, r := range rawResults {
		if rr, ok := r.(aggregator.ROIResult); ok {
			roiResults = append(roiResults, rr)
		}
	}

	result := aggregator.Aggregate(ctx, roiResults, req, s.Linker, sessionID.String(), product.Name, time.Since(start))

	overallStatus := "fail"
	if result.Overall.Passed {
		overallStatus = "pass"
	}
	metrics.RecordInspection(product.Name, overallStatus)

	if s.Audit != nil {
		if err := s.Audit.WriteEvent(ctx, auditlog.InspectionAuditRecord{
			SessionID:   sessionID,
			ProductName: product.Name,
			Result:      overallStatus,
			TotalROIs:   result.Overall.TotalROIs,
			PassedROIs:  result.Overall.PassedROIs,
			CreatedAt:   time.Now(),
		}); err != nil {
			log.Printf("[inspect] audit write failed: %v", err)
		}
	}
	if s.Events != nil {
		s.Events.PublishInspectionCompleted(eventbus.InspectionCompletedEvent{
			SessionID:   sessionID,
			ProductName: product.Name,
			Result:      overallStatus,
			OccurredAt:  time.Now(),
		})
	}
	return result, nil
}
