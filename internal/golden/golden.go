// Package golden is the Golden Sample Library: it owns the versioned
// reference-image store for Compare ROIs, with atomic save/promote/
// restore/delete/rename sequences (spec §4.3).
package golden

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/technosupport/visual-aoi/internal/apierrors"
)

const bestFilename = "best_golden.jpg"

// Sample describes one file in a ROI's golden directory.
type Sample struct {
	Name   string
	IsBest bool
}

// Library serializes operations on the same ROI directory behind a
// per-directory mutex; different directories proceed in parallel (spec
// §4.3 Concurrency).
type Library struct {
	root string // serverRoot/products

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	onChange func(product string, roiID int) // optional invalidation hook
}

// NewLibrary builds a Library rooted at serverRoot/products.
func NewLibrary(serverRoot string) *Library {
	return &Library{root: filepath.Join(serverRoot, "products"), locks: make(map[string]*sync.Mutex)}
}

// OnChange registers a callback invoked after Save, Promote, Restore,
// Delete and each RenameFolders destination. The Library keeps no
// List() cache and does not watch the directory for out-of-band edits.
func (l *Library) OnChange(fn func(product string, roiID int)) { l.onChange = fn }

func (l *Library) dirFor(product string, roiID int) string {
	return filepath.Join(l.root, product, "golden_rois", fmt.Sprintf("roi_%d", roiID))
}

// Dir exposes the ROI's golden directory so callers needing full file
// paths (e.g. the Compare analyzer's GoldenSource adapter) don't have
// to re-derive the layout.
func (l *Library) Dir(product string, roiID int) string {
	return l.dirFor(product, roiID)
}

func (l *Library) lockFor(product string, roiID int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", product, roiID)
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func timestampName(suffix string) string {
	ts := time.Now().Unix()
	if suffix == "" {
		return fmt.Sprintf("original_%d.jpg", ts)
	}
	return fmt.Sprintf("original_%d_%s.jpg", ts, suffix)
}

// Save writes bytes as the new best_golden.jpg. If a best already
// exists it is renamed to original_<now>_old_best.jpg first, so a crash
// between the two steps leaves a recoverable backup, never a missing
// best (spec §4.3 Save).
func (l *Library) Save(product string, roiID int, data []byte) error {
	lock := l.lockFor(product, roiID)
	lock.Lock()
	defer lock.Unlock()

	dir := l.dirFor(product, roiID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return apierrors.New(apierrors.IO, "mkdir golden dir", err)
	}

	best := filepath.Join(dir, bestFilename)
	if _, err := os.Stat(best); err == nil {
		backup := filepath.Join(dir, timestampName("old_best"))
		if err := os.Rename(best, backup); err != nil {
			return apierrors.New(apierrors.IO, "back up existing best_golden.jpg", err)
		}
	}
	if err := os.WriteFile(best, data, 0640); err != nil {
		return apierrors.New(apierrors.IO, "write best_golden.jpg", err)
	}
	l.notify(product, roiID)
	return nil
}

// List enumerates all *.jpg files in the ROI directory, flagging
// best_golden.jpg and sorting it first (spec §4.3 List).
func (l *Library) List(product string, roiID int) ([]Sample, error) {
	lock := l.lockFor(product, roiID)
	lock.Lock()
	defer lock.Unlock()
	return l.listLocked(product, roiID)
}

func (l *Library) listLocked(product string, roiID int) ([]Sample, error) {
	dir := l.dirFor(product, roiID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierrors.New(apierrors.IO, "list golden dir", err)
	}

	var samples []Sample
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		samples = append(samples, Sample{Name: e.Name(), IsBest: e.Name() == bestFilename})
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].IsBest != samples[j].IsBest {
			return samples[i].IsBest
		}
		return samples[i].Name < samples[j].Name
	})
	return samples, nil
}

// Promote backs up the current best (if any) then copies alternative
// into its place (spec §4.3 Promote: "same back-up-then-copy sequence").
func (l *Library) Promote(product string, roiID int, alternative string) error {
	lock := l.lockFor(product, roiID)
	lock.Lock()
	defer lock.Unlock()

	dir := l.dirFor(product, roiID)
	altPath := filepath.Join(dir, alternative)
	data, err := os.ReadFile(altPath)
	if err != nil {
		if os.IsNotExist(err) {
			return apierrors.New(apierrors.NotFound, "alternative not found: "+alternative, err)
		}
		return apierrors.New(apierrors.IO, "read alternative", err)
	}

	best := filepath.Join(dir, bestFilename)
	if _, err := os.Stat(best); err == nil {
		backup := filepath.Join(dir, timestampName("old_best"))
		if err := os.Rename(best, backup); err != nil {
			return apierrors.New(apierrors.IO, "back up existing best_golden.jpg", err)
		}
	}
	if err := os.WriteFile(best, data, 0640); err != nil {
		return apierrors.New(apierrors.IO, "write promoted best_golden.jpg", err)
	}
	l.notify(product, roiID)
	return nil
}

// Restore backs up the current best, then restores backupName into
// best_golden.jpg (spec §4.3 Restore).
func (l *Library) Restore(product string, roiID int, backupName string) error {
	if !strings.HasPrefix(backupName, "original_") {
		return apierrors.New(apierrors.Validation, "restore target must be an original_* backup", nil)
	}
	// same mechanics as Promote: back up current best, copy named file in
	return l.Promote(product, roiID, backupName)
}

// Delete removes a named file. Forbidden if the directory would become
// empty, or if name is the only remaining file (spec §4.3 Delete).
func (l *Library) Delete(product string, roiID int, name string) error {
	lock := l.lockFor(product, roiID)
	lock.Lock()
	defer lock.Unlock()

	samples, err := l.listLocked(product, roiID)
	if err != nil {
		return err
	}
	if len(samples) <= 1 {
		return apierrors.New(apierrors.Conflict, "cannot delete the only remaining golden sample", nil)
	}
	found := false
	for _, s := range samples {
		if s.Name == name {
			found = true
			break
		}
	}
	if !found {
		return apierrors.New(apierrors.NotFound, "golden sample not found: "+name, nil)
	}

	path := filepath.Join(l.dirFor(product, roiID), name)
	if err := os.Remove(path); err != nil {
		return apierrors.New(apierrors.IO, "delete golden sample", err)
	}
	l.notify(product, roiID)
	return nil
}

// RenameFolders performs a two-phase rename of ROI golden directories
// via a temporary suffix, to avoid id collisions when renumbering ROIs
// after a deletion (spec §4.3 RenameFolders).
func (l *Library) RenameFolders(product string, oldToNew map[int]int) error {
	base := filepath.Join(l.root, product, "golden_rois")

	// Phase 1: every source -> <source>_temp_rename
	tempNames := make(map[int]string, len(oldToNew))
	for oldID := range oldToNew {
		lock := l.lockFor(product, oldID)
		lock.Lock()
		src := filepath.Join(base, fmt.Sprintf("roi_%d", oldID))
		if _, err := os.Stat(src); os.IsNotExist(err) {
			lock.Unlock()
			continue
		}
		temp := src + "_temp_rename"
		if err := os.Rename(src, temp); err != nil {
			lock.Unlock()
			return apierrors.New(apierrors.IO, fmt.Sprintf("phase 1 rename of roi %d", oldID), err)
		}
		tempNames[oldID] = temp
		lock.Unlock()
	}

	// Phase 2: each temp -> final name, removing any pre-existing destination first
	for oldID, newID := range oldToNew {
		temp, ok := tempNames[oldID]
		if !ok {
			continue
		}
		lock := l.lockFor(product, newID)
		lock.Lock()
		dst := filepath.Join(base, fmt.Sprintf("roi_%d", newID))
		if _, err := os.Stat(dst); err == nil {
			if err := os.RemoveAll(dst); err != nil {
				lock.Unlock()
				return apierrors.New(apierrors.IO, fmt.Sprintf("remove pre-existing destination for roi %d", newID), err)
			}
		}
		if err := os.Rename(temp, dst); err != nil {
			lock.Unlock()
			return apierrors.New(apierrors.IO, fmt.Sprintf("phase 2 rename to roi %d", newID), err)
		}
		lock.Unlock()
		l.notify(product, newID)
	}
	return nil
}

// RemoveROIDirs deletes the golden directories for the given ROI ids,
// used by the Product Store's save-time garbage collection (spec
// §4.2 Save: "delete the corresponding golden_rois/roi_<idx>/
// directories").
func (l *Library) RemoveROIDirs(product string, roiIDs []int) error {
	for _, id := range roiIDs {
		lock := l.lockFor(product, id)
		lock.Lock()
		err := os.RemoveAll(l.dirFor(product, id))
		lock.Unlock()
		if err != nil {
			return apierrors.New(apierrors.IO, fmt.Sprintf("remove golden dir for roi %d", id), err)
		}
	}
	return nil
}

func (l *Library) notify(product string, roiID int) {
	if l.onChange != nil {
		l.onChange(product, roiID)
	}
}
