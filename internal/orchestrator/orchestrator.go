// Package orchestrator maps captured image groups to their ROI
// subsets and fans ROI computation out across a shared, request-scoped
// worker pool (spec §4.5 orchestrator half).
package orchestrator

import (
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/technosupport/visual-aoi/internal/apierrors"
	"github.com/technosupport/visual-aoi/internal/imaging"
	"github.com/technosupport/visual-aoi/internal/products"
)

// CaptureKey buckets by (focus, exposure), the camera state a client
// must have used to shoot the paired image (spec §3 CaptureGroup).
type CaptureKey struct {
	Focus    int
	Exposure int
}

// CaptureGroup pairs one captured image with the ROI subset configured
// for its (focus, exposure).
type CaptureGroup struct {
	ImagePath string
	ROIs      []products.ROI
}

// WorkItem is one ROI ready to be processed against its group's image.
type WorkItem struct {
	Group CaptureKey
	ROI   products.ROI
	Image image.Image
}

// BuildWorkItems flattens capture groups into the full work list the
// pool will execute (spec §9 design note: pure builder, no I/O).
func BuildWorkItems(groups map[CaptureKey]CaptureGroup, loaded map[CaptureKey]image.Image) []WorkItem {
	var items []WorkItem
	for key, group := range groups {
		img, ok := loaded[key]
		if !ok {
			continue
		}
		for _, roi := range group.ROIs {
			items = append(items, WorkItem{Group: key, ROI: roi, Image: img})
		}
	}
	return items
}

// ProcessFunc runs one ROI against its already-loaded image and
// returns an opaque per-ROI result, typed by the caller.
type ProcessFunc func(ctx context.Context, item WorkItem) any

// Run processes every item across a shared pool of size
// min(len(items), NumCPU) (spec §4.5: "one shared worker pool of size
// min(total_rois, CPU_count)"), request-scoped rather than
// continuously running like a background scheduler.
func Run(ctx context.Context, items []WorkItem, fn ProcessFunc) []any {
	if len(items) == 0 {
		return nil
	}
	poolSize := runtime.NumCPU()
	if len(items) < poolSize {
		poolSize = len(items)
	}

	jobs := make(chan int, len(items))
	results := make([]any, len(items))

	var wg sync.WaitGroup
	for w := 0; w < poolSize; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-ctx.Done():
					results[idx] = apierrors.New(apierrors.Internal, "cancelled before processing", ctx.Err())
				default:
					results[idx] = fn(ctx, items[idx])
				}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// CropForROI applies the ROI's coordinates and rotation to the group
// image, the input every analyzer receives (spec §4.4: "receives the
// crop image[y1:y2, x1:x2] with optional rotation applied").
func CropForROI(img image.Image, roi products.ROI) image.Image {
	crop := imaging.Crop(img, roi.X1, roi.Y1, roi.X2, roi.Y2)
	if roi.Rotation != 0 {
		crop = imaging.Rotate(crop, roi.Rotation)
	}
	return crop
}

// GroupROIsByCaptureKey buckets a product's ROIs by (focus, exposure),
// backing /get_roi_groups/<product> (spec §6).
func GroupROIsByCaptureKey(rois []products.ROI) map[CaptureKey][]products.ROI {
	out := make(map[CaptureKey][]products.ROI)
	for _, r := range rois {
		key := CaptureKey{Focus: r.Focus, Exposure: r.Exposure}
		out[key] = append(out[key], r)
	}
	return out
}
