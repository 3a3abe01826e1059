package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/visual-aoi/internal/orchestrator"
	"github.com/technosupport/visual-aoi/internal/products"
)

// roiGroup is the JSON-friendly shape of one (focus, exposure) bucket;
// orchestrator.CaptureKey can't be a map key in encoded JSON, so this
// flattens it into a list.
type roiGroup struct {
	Focus    int            `json:"focus"`
	Exposure int            `json:"exposure"`
	ROIs     []products.ROI `json:"rois"`
}

// handleListProducts returns every configured product name (spec §6
// GET /api/products).
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	names, err := s.Products.ListProducts()
	if err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"products": names})
}

type createProductRequest struct {
	Name       string `json:"name"`
	NumDevices int    `json:"num_devices"`
}

// handleCreateProduct seeds a default ROI configuration for a new
// product (spec §6 POST /api/products/create).
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.NumDevices == 0 {
		req.NumDevices = 1
	}
	if err := s.Products.CreateProduct(req.Name, req.NumDevices); err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "created", "name": req.Name})
}

// handleGetROIs returns a product's full ROI configuration (spec §6
// GET /api/products/{name}/rois).
func (s *Server) handleGetROIs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	product, err := s.Products.Load(name)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

type saveROIsRequest struct {
	ROIs []products.ROI `json:"rois"`
}

// handleSaveROIs validates and persists a new ROI set, garbage
// collecting stale golden directories (spec §6 POST
// /api/products/{name}/rois).
func (s *Server) handleSaveROIs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req saveROIsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	gc := func(staleIdx []int) error {
		return s.Golden.RemoveROIDirs(name, staleIdx)
	}
	if err := s.Products.Save(name, req.ROIs, gc); err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "saved", "name": name})
}

// handleGetColors returns the product-level color fallback config, if
// any (spec §6 GET /api/products/{name}/colors).
func (s *Server) handleGetColors(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cc, err := s.Products.LoadColors(name)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	if cc == nil {
		respondJSON(w, http.StatusOK, map[string]any{"colors": nil})
		return
	}
	respondJSON(w, http.StatusOK, cc)
}

// handleSaveColors persists the product-level color fallback config
// (spec §6 POST /api/products/{name}/colors).
func (s *Server) handleSaveColors(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var cc products.ColorConfig
	if err := json.NewDecoder(r.Body).Decode(&cc); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.Products.SaveColors(name, cc); err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "saved", "name": name})
}

// handleGetROIGroups buckets a product's ROIs by (focus, exposure),
// the shape clients use to decide how many images to capture (spec §6
// GET /get_roi_groups/{product}).
func (s *Server) handleGetROIGroups(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "product")
	product, err := s.Products.Load(name)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	byKey := orchestrator.GroupROIsByCaptureKey(product.ROIs)
	groups := make([]roiGroup, 0, len(byKey))
	for key, rois := range byKey {
		groups = append(groups, roiGroup{Focus: key.Focus, Exposure: key.Exposure, ROIs: rois})
	}
	respondJSON(w, http.StatusOK, map[string]any{"groups": groups})
}
