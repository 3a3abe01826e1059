// Package products is the Product & ROI Store: it loads, validates,
// normalizes, persists and versions ROI configurations (spec §4.2).
package products

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/technosupport/visual-aoi/internal/apierrors"
)

// ROIType enumerates the four analyzer kinds (spec §3).
type ROIType int

const (
	Barcode ROIType = 1
	Compare ROIType = 2
	OCR     ROIType = 3
	Color   ROIType = 4
)

// ColorRange is one entry of a legacy color_config.color_ranges list.
type ColorRange struct {
	Name       string `json:"name"`
	Lower      [3]int `json:"lower"`
	Upper      [3]int `json:"upper"`
	ColorSpace string `json:"color_space"` // RGB or HSV
	Threshold  int    `json:"threshold"`
}

// ColorConfig holds either the modern single-target form or the legacy
// multi-range form (spec §3 ROI.color_config).
type ColorConfig struct {
	ExpectedColor      *[3]int      `json:"expected_color,omitempty"`
	ColorTolerance      *int         `json:"color_tolerance,omitempty"`
	MinPixelPercentage *float64     `json:"min_pixel_percentage,omitempty"`
	ColorRanges        []ColorRange `json:"color_ranges,omitempty"`
}

// ROI is the canonical 12-field configuration unit (spec §3).
type ROI struct {
	Idx            int          `json:"idx"`
	Type           ROIType      `json:"type"`
	X1             int          `json:"x1"`
	Y1             int          `json:"y1"`
	X2             int          `json:"x2"`
	Y2             int          `json:"y2"`
	Focus          int          `json:"focus"`
	Exposure       int          `json:"exposure"`
	DeviceLocation int          `json:"device_location"`
	Rotation       int          `json:"rotation"`

	AIThreshold     *float64     `json:"ai_threshold,omitempty"`
	FeatureMethod   string       `json:"feature_method,omitempty"`
	ExpectedText    *string      `json:"expected_text,omitempty"`
	IsDeviceBarcode bool         `json:"is_device_barcode,omitempty"`
	ColorConfig     *ColorConfig `json:"color_config,omitempty"`
}

// Product is a named configuration unit owning a list of ROIs.
type Product struct {
	Name string `json:"name"`
	ROIs []ROI  `json:"rois"`
}

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName enforces the sanitized-name invariant (spec §3).
func ValidateName(name string) error {
	if name == "" || !nameRE.MatchString(name) {
		return apierrors.New(apierrors.Validation, "product name must be alphanumeric, '_' or '-': "+name, nil)
	}
	return nil
}

// Store loads, validates, normalizes and persists products under
// serverRoot/products/. A per-product RWMutex serializes Save against
// concurrent Load/Save of the same product; different products proceed
// in parallel (spec §4.2 concurrency note mirrors §4.3's).
type Store struct {
	root string

	mu     sync.Mutex // guards locks map itself
	locks  map[string]*sync.RWMutex

	cache Cache // optional; nil means no caching layer
}

// Cache is satisfied by the Redis-backed config cache (spec §10: an
// optional read-through cache in front of the JSON-on-disk store).
type Cache interface {
	Get(product string) ([]byte, bool)
	Set(product string, data []byte)
	Invalidate(product string)
}

// NewStore builds a Store rooted at serverRoot/products. cache may be nil.
func NewStore(serverRoot string, cache Cache) *Store {
	return &Store{
		root:  filepath.Join(serverRoot, "products"),
		locks: make(map[string]*sync.RWMutex),
		cache: cache,
	}
}

func (s *Store) lockFor(product string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[product]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[product] = l
	}
	return l
}

func (s *Store) productDir(name string) string  { return filepath.Join(s.root, name) }
func (s *Store) configPath(name string) string {
	return filepath.Join(s.productDir(name), fmt.Sprintf("rois_config_%s.json", name))
}

// Load reads products/<name>/rois_config_<name>.json, normalizing each
// ROI to its canonical form and inferring a missing feature_method from
// type (spec §4.2 Load).
func (s *Store) Load(name string) (Product, error) {
	if err := ValidateName(name); err != nil {
		return Product{}, err
	}
	lock := s.lockFor(name)
	lock.RLock()
	defer lock.RUnlock()

	var data []byte
	if s.cache != nil {
		if cached, ok := s.cache.Get(name); ok {
			data = cached
		}
	}
	if data == nil {
		raw, err := os.ReadFile(s.configPath(name))
		if err != nil {
			if os.IsNotExist(err) {
				return Product{}, apierrors.New(apierrors.NotFound, "product not found: "+name, err)
			}
			return Product{}, apierrors.New(apierrors.IO, "read product config", err)
		}
		data = raw
		if s.cache != nil {
			s.cache.Set(name, raw)
		}
	}

	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return Product{}, apierrors.New(apierrors.Validation, "malformed product config", err)
	}
	p.Name = name
	for i := range p.ROIs {
		normalize(&p.ROIs[i])
	}
	if errs := validateAll(p.ROIs); len(errs) > 0 {
		return Product{}, apierrors.NewValidation("invalid product config", errs)
	}
	return p, nil
}

// normalize pads a legacy 5-10 field ROI to the canonical 12-field form
// by inferring feature_method from type when absent (spec §3 backward
// compat, §4.2 Load).
func normalize(r *ROI) {
	if r.FeatureMethod != "" {
		return
	}
	switch r.Type {
	case Compare:
		r.FeatureMethod = "mobilenet"
	case Barcode:
		r.FeatureMethod = "barcode"
	case OCR:
		r.FeatureMethod = "ocr"
	}
}

func validateAll(rois []ROI) []string {
	var errs []string
	seen := make(map[int]bool)
	for _, r := range rois {
		if msg := validateOne(r); msg != "" {
			errs = append(errs, msg)
			continue
		}
		if seen[r.Idx] {
			errs = append(errs, fmt.Sprintf("roi %d: duplicate idx", r.Idx))
		}
		seen[r.Idx] = true
	}
	return errs
}

func validateOne(r ROI) string {
	pfx := fmt.Sprintf("roi %d", r.Idx)
	if r.Idx <= 0 {
		return pfx + ": idx must be positive"
	}
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 || r.X1 < 0 || r.Y1 < 0 {
		return pfx + ": coords must satisfy x1<x2, y1<y2, non-negative"
	}
	if r.Focus <= 0 || r.Exposure <= 0 {
		return pfx + ": focus and exposure must be positive"
	}
	if r.DeviceLocation < 1 || r.DeviceLocation > 4 {
		return pfx + ": device_location must be in 1..4"
	}
	switch r.Rotation {
	case 0, 90, 180, 270:
	default:
		return pfx + ": rotation must be one of 0,90,180,270"
	}
	switch r.Type {
	case Compare:
		if r.AIThreshold == nil || *r.AIThreshold < 0 || *r.AIThreshold > 1 {
			return pfx + ": ai_threshold must be set in [0,1] for Compare"
		}
	case Color:
		if r.ColorConfig == nil {
			return pfx + ": color_config required for Color"
		}
		cc := r.ColorConfig
		hasModern := cc.ExpectedColor != nil && cc.ColorTolerance != nil && cc.MinPixelPercentage != nil
		hasLegacy := len(cc.ColorRanges) > 0
		if !hasModern && !hasLegacy {
			return pfx + ": color_config must be either the expected_color form or color_ranges form"
		}
	case Barcode, OCR:
		// no additional required fields beyond the common ones
	default:
		return pfx + ": unknown type"
	}
	return ""
}

// Save validates first, writes second, garbage-collects last (spec
// §4.2 Save). The idx set of ROIs dropped by this save is passed to gc;
// Save itself returns only an error and does not report that set to
// its caller.
func (s *Store) Save(name string, rois []ROI, gc func(staleIdx []int) error) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if errs := validateAll(rois); len(errs) > 0 {
		return apierrors.NewValidation("rejected ROI configuration", errs)
	}

	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	var staleIdx []int
	if existing, err := s.loadLocked(name); err == nil {
		oldSet := make(map[int]bool, len(existing.ROIs))
		for _, r := range existing.ROIs {
			oldSet[r.Idx] = true
		}
		for _, r := range rois {
			delete(oldSet, r.Idx)
		}
		for idx := range oldSet {
			staleIdx = append(staleIdx, idx)
		}
		sort.Ints(staleIdx)
	}

	dir := s.productDir(name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return apierrors.New(apierrors.IO, "mkdir product dir", err)
	}

	p := Product{Name: name, ROIs: rois}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return apierrors.New(apierrors.Internal, "marshal product config", err)
	}
	if err := os.WriteFile(s.configPath(name), data, 0640); err != nil {
		return apierrors.New(apierrors.IO, "write product config", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(name)
	}

	if len(staleIdx) > 0 && gc != nil {
		if err := gc(staleIdx); err != nil {
			return apierrors.Wrap(apierrors.IO, "garbage-collect stale golden directories", err)
		}
	}
	return nil
}

// loadLocked reads without acquiring the lock, for internal callers
// that already hold it.
func (s *Store) loadLocked(name string) (Product, error) {
	raw, err := os.ReadFile(s.configPath(name))
	if err != nil {
		return Product{}, err
	}
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return Product{}, err
	}
	p.Name = name
	for i := range p.ROIs {
		normalize(&p.ROIs[i])
	}
	return p, nil
}

// ListProducts scans products/ for directories containing a matching
// rois_config_<name>.json (spec §4.2 ListProducts).
func (s *Store) ListProducts() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierrors.New(apierrors.IO, "list products dir", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), fmt.Sprintf("rois_config_%s.json", e.Name()))); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CreateProduct seeds a default three-ROI-per-device configuration
// (Barcode+Compare+OCR) and rejects if the product already exists
// (spec §4.2 CreateProduct).
func (s *Store) CreateProduct(name string, numDevices int) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if numDevices <= 0 {
		return apierrors.New(apierrors.Validation, "num_devices must be positive", nil)
	}

	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(s.configPath(name)); err == nil {
		return apierrors.New(apierrors.Conflict, "product already exists: "+name, nil)
	}

	rois := defaultROIs(numDevices)
	dir := s.productDir(name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return apierrors.New(apierrors.IO, "mkdir product dir", err)
	}
	data, err := json.MarshalIndent(Product{Name: name, ROIs: rois}, "", "  ")
	if err != nil {
		return apierrors.New(apierrors.Internal, "marshal seed config", err)
	}
	if err := os.WriteFile(s.configPath(name), data, 0640); err != nil {
		return apierrors.New(apierrors.IO, "write seed config", err)
	}
	return nil
}

func (s *Store) colorsPath(name string) string {
	return filepath.Join(s.productDir(name), fmt.Sprintf("colors_config_%s.json", name))
}

// LoadColors reads the product-level color fallback config (spec §4.4
// Color analyzer priority (b)). A missing file is not an error: it
// simply means no fallback is configured.
func (s *Store) LoadColors(name string) (*ColorConfig, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	lock := s.lockFor(name)
	lock.RLock()
	defer lock.RUnlock()

	raw, err := os.ReadFile(s.colorsPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierrors.New(apierrors.IO, "read colors config", err)
	}
	var cc ColorConfig
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, apierrors.New(apierrors.Validation, "malformed colors config", err)
	}
	return &cc, nil
}

// SaveColors writes the product-level color fallback config.
func (s *Store) SaveColors(name string, cc ColorConfig) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	dir := s.productDir(name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return apierrors.New(apierrors.IO, "mkdir product dir", err)
	}
	data, err := json.MarshalIndent(cc, "", "  ")
	if err != nil {
		return apierrors.New(apierrors.Internal, "marshal colors config", err)
	}
	if err := os.WriteFile(s.colorsPath(name), data, 0640); err != nil {
		return apierrors.New(apierrors.IO, "write colors config", err)
	}
	return nil
}

func defaultROIs(numDevices int) []ROI {
	threshold := 0.85
	var rois []ROI
	idx := 1
	for dev := 1; dev <= numDevices; dev++ {
		rois = append(rois,
			ROI{Idx: idx, Type: Barcode, X1: 0, Y1: 0, X2: 100, Y2: 50, Focus: 100, Exposure: 100,
				DeviceLocation: dev, FeatureMethod: "barcode", IsDeviceBarcode: true},
			ROI{Idx: idx + 1, Type: Compare, X1: 0, Y1: 60, X2: 100, Y2: 160, Focus: 100, Exposure: 100,
				DeviceLocation: dev, FeatureMethod: "mobilenet", AIThreshold: &threshold},
			ROI{Idx: idx + 2, Type: OCR, X1: 0, Y1: 170, X2: 100, Y2: 220, Focus: 100, Exposure: 100,
				DeviceLocation: dev, FeatureMethod: "ocr"},
		)
		idx += 3
	}
	return rois
}
