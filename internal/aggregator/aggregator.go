// Package aggregator implements the Result Aggregator half of spec
// §4.5: dedup, per-device bucketing, barcode priority resolution, the
// external linking call, and pass/fail rollup.
package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/technosupport/visual-aoi/internal/analyzers"
)

// ROIResult is the per-ROI outcome returned to clients (spec §3).
type ROIResult struct {
	ROIID         int      `json:"roi_id"`
	DeviceID      int      `json:"device_id"`
	ROITypeName   string   `json:"roi_type_name"`
	Passed        bool     `json:"passed"`
	Coordinates   [4]int   `json:"coordinates"`
	ROIImagePath  string   `json:"roi_image_path,omitempty"`
	GoldenImagePath string `json:"golden_image_path,omitempty"`
	Error         string   `json:"error,omitempty"`

	// IsDeviceBarcodeHit marks a Barcode result whose ROI carried
	// is_device_barcode=true (spec §4.5 priority P0). Not serialized —
	// it is aggregation-internal bookkeeping, not part of the public
	// ROIResult shape in spec §3.
	IsDeviceBarcodeHit bool `json:"-"`

	analyzers.Payload
}

// DeviceSummary is the per-device rollup (spec §3).
type DeviceSummary struct {
	DeviceID    int         `json:"device_id"`
	TotalROIs   int         `json:"total_rois"`
	PassedROIs  int         `json:"passed_rois"`
	FailedROIs  int         `json:"failed_rois"`
	DevicePassed bool       `json:"device_passed"`
	Barcode     string      `json:"barcode"`
	Results     []ROIResult `json:"results"`
}

// OverallResult is the inspection-wide rollup (spec §3).
type OverallResult struct {
	Passed         bool          `json:"passed"`
	TotalROIs      int           `json:"total_rois"`
	PassedROIs     int           `json:"passed_rois"`
	FailedROIs     int           `json:"failed_rois"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// InspectRequest carries the legacy manual-barcode fallbacks (spec
// §4.5 priorities P2/P3).
type InspectRequest struct {
	DeviceBarcodes map[int]string // P2: per-device manual override
	DeviceBarcode  string         // P3: legacy single manual override
}

// InspectionResult is the full response payload (spec §4.5 point 6).
type InspectionResult struct {
	SessionID       string                   `json:"session_id"`
	ProductName     string                   `json:"product_name"`
	ROIResults      []ROIResult              `json:"roi_results"`
	DeviceSummaries map[int]*DeviceSummary   `json:"device_summaries"`
	Overall         OverallResult            `json:"overall_result"`
}

// Linker resolves a raw barcode to its canonical linked value; failures
// must already be absorbed into the returned string (spec §7: linking
// failures never surface as errors).
type Linker interface {
	Link(ctx context.Context, rawBarcode string) string
}

// Aggregate implements spec §4.5 points 1-6.
func Aggregate(ctx context.Context, results []ROIResult, req InspectRequest, linker Linker, sessionID, productName string, elapsed time.Duration) InspectionResult {
	deduped := dedupe(results)

	devices := make(map[int]*DeviceSummary)
	for _, r := range deduped {
		d, ok := devices[r.DeviceID]
		if !ok {
			d = &DeviceSummary{DeviceID: r.DeviceID, Barcode: "N/A"}
			devices[r.DeviceID] = d
		}
		d.Results = append(d.Results, r)
		d.TotalROIs++
		if r.Passed {
			d.PassedROIs++
		} else {
			d.FailedROIs++
		}
	}

	assignBarcodes(devices, deduped, req)

	for _, d := range devices {
		if d.Barcode != "N/A" {
			d.Barcode = linker.Link(ctx, d.Barcode)
		}
		d.DevicePassed = d.TotalROIs > 0 && d.PassedROIs == d.TotalROIs
		sort.Slice(d.Results, func(i, j int) bool { return d.Results[i].ROIID < d.Results[j].ROIID })
	}

	overall := OverallResult{ProcessingTime: elapsed}
	for _, d := range devices {
		overall.TotalROIs += d.TotalROIs
		overall.PassedROIs += d.PassedROIs
		overall.FailedROIs += d.FailedROIs
	}
	overall.Passed = overall.TotalROIs > 0 && overall.PassedROIs == overall.TotalROIs

	return InspectionResult{
		SessionID:       sessionID,
		ProductName:     productName,
		ROIResults:      deduped,
		DeviceSummaries: devices,
		Overall:         overall,
	}
}

// dedupe keeps the last-written result per (device_id, roi_id), per
// spec §4.5 point 1. Input order is assumed to be completion order;
// the last occurrence of a key wins.
func dedupe(results []ROIResult) []ROIResult {
	type key struct {
		device, roi int
	}
	latest := make(map[key]ROIResult, len(results))
	var order []key
	for _, r := range results {
		k := key{r.DeviceID, r.ROIID}
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = r
	}
	out := make([]ROIResult, 0, len(order))
	for _, k := range order {
		out = append(out, latest[k])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].ROIID < out[j].ROIID
	})
	return out
}

// assignBarcodes implements the five-level priority list, each level
// only filling devices still at "N/A" (spec §4.5 point 3).
func assignBarcodes(devices map[int]*DeviceSummary, results []ROIResult, req InspectRequest) {
	// P0: is_device_barcode ROI on that device produced a non-empty value.
	for _, r := range results {
		d := devices[r.DeviceID]
		if d.Barcode != "N/A" {
			continue
		}
		if r.ROITypeName == "Barcode" && r.IsDeviceBarcodeHit && firstNonEmpty(r.BarcodeValues) != "" {
			d.Barcode = firstNonEmpty(r.BarcodeValues)
		}
	}
	// P1: any Barcode ROI on that device produced a non-empty value.
	for _, r := range results {
		d := devices[r.DeviceID]
		if d.Barcode != "N/A" {
			continue
		}
		if r.ROITypeName == "Barcode" && firstNonEmpty(r.BarcodeValues) != "" {
			d.Barcode = firstNonEmpty(r.BarcodeValues)
		}
	}
	// P2: request's per-device manual override.
	for id, d := range devices {
		if d.Barcode == "N/A" {
			if v, ok := req.DeviceBarcodes[id]; ok && v != "" {
				d.Barcode = v
			}
		}
	}
	// P3: request's legacy single manual override.
	if req.DeviceBarcode != "" {
		for _, d := range devices {
			if d.Barcode == "N/A" {
				d.Barcode = req.DeviceBarcode
			}
		}
	}
	// P4: remains "N/A" — nothing to do.
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
