package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/technosupport/visual-aoi/internal/aggregator"
	"github.com/technosupport/visual-aoi/internal/apierrors"
	"github.com/technosupport/visual-aoi/internal/imaging"
	"github.com/technosupport/visual-aoi/internal/inspection"
	"github.com/technosupport/visual-aoi/internal/orchestrator"
	"github.com/technosupport/visual-aoi/internal/products"
)

type createSessionRequest struct {
	Product        string                    `json:"product_name"`
	ClientMetadata inspection.ClientMetadata `json:"client_metadata"`
}

// handleSessionCreate allocates a fresh session workspace (spec §6
// POST /api/session/create).
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	sess, err := s.Sessions.Create(req.Product, req.ClientMetadata)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID.String()})
}

func sessionIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apierrors.New(apierrors.Validation, "invalid session id", err)
	}
	return id, nil
}

// handleSessionClose is idempotent: it always attempts workspace
// removal (spec §4.6 Close), and answers 404 when the id was not a
// live session.
func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromRequest(r)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	_, getErr := s.Sessions.Get(id)
	if err := s.Sessions.Close(id); err != nil {
		respondAPIError(w, err)
		return
	}
	if getErr != nil {
		respondAPIError(w, getErr)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// imageRef is the three-method image reference spec §6 describes for
// inspect/grouped_inspect payloads, in priority order.
type imageRef struct {
	ImagePath     string `json:"image_path,omitempty"`
	ImageFilename string `json:"image_filename,omitempty"`
	ImageBase64   string `json:"image,omitempty"`
}

func (ref imageRef) label() string {
	if ref.ImagePath != "" {
		return ref.ImagePath
	}
	return ref.ImageFilename
}

// resolveRef picks the highest-priority non-empty method and returns
// the decoded image, or nil if the ref is entirely empty.
func (s *Server) resolveRef(sessionID uuid.UUID, ref imageRef) (image.Image, error) {
	if ref.ImagePath != "" {
		return s.resolveImageRef(sessionID, ref.ImagePath)
	}
	if ref.ImageFilename != "" {
		return s.resolveImageRef(sessionID, ref.ImageFilename)
	}
	if ref.ImageBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(ref.ImageBase64)
		if err != nil {
			return nil, apierrors.New(apierrors.Validation, "malformed base64 image", err)
		}
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, apierrors.New(apierrors.Validation, "decode base64 image", err)
		}
		return img, nil
	}
	return nil, nil
}

type inspectRequest struct {
	imageRef
	ROIFilter      []int          `json:"roi_filter,omitempty"`
	DeviceBarcode  string         `json:"device_barcode,omitempty"`
	DeviceBarcodes map[int]string `json:"device_barcodes,omitempty"`
}

// handleSessionInspect runs a single-image inspection against an
// optional ROI subset (spec §4.5: "a filter parameter is supported for
// ad-hoc single-group inspection").
func (s *Server) handleSessionInspect(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	sess, err := s.Sessions.BeginInspection(sessionID)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	var result aggregator.InspectionResult
	defer func() { s.Sessions.EndInspection(sess, result) }()

	var req inspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	product, err := s.Products.Load(sess.Product)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	rois := filterROIs(product.ROIs, req.ROIFilter)

	img, err := s.resolveRef(sessionID, req.imageRef)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	if img == nil {
		respondError(w, http.StatusBadRequest, "no image supplied: set image_path, image_filename or image")
		return
	}

	key := orchestrator.CaptureKey{}
	groups := map[orchestrator.CaptureKey]orchestrator.CaptureGroup{
		key: {ImagePath: req.label(), ROIs: rois},
	}
	loaded := map[orchestrator.CaptureKey]image.Image{key: img}

	result, err = s.runInspectionPreloaded(r.Context(), sessionID, product, groups, loaded, aggregator.InspectRequest{
		DeviceBarcodes: req.DeviceBarcodes, DeviceBarcode: req.DeviceBarcode,
	})
	if err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func filterROIs(all []products.ROI, filter []int) []products.ROI {
	if len(filter) == 0 {
		return all
	}
	want := make(map[int]bool, len(filter))
	for _, idx := range filter {
		want[idx] = true
	}
	out := make([]products.ROI, 0, len(filter))
	for _, r := range all {
		if want[r.Idx] {
			out = append(out, r)
		}
	}
	return out
}

type groupedInspectRequest struct {
	Groups         []groupPayload `json:"groups"`
	DeviceBarcode  string         `json:"device_barcode,omitempty"`
	DeviceBarcodes map[int]string `json:"device_barcodes,omitempty"`
}

type groupPayload struct {
	imageRef
	Focus    int `json:"focus"`
	Exposure int `json:"exposure"`
}

// handleSessionGroupedInspect runs a full multi-image inspection
// across every capture group in one worker-pool batch (spec §4.5).
func (s *Server) handleSessionGroupedInspect(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	sess, err := s.Sessions.BeginInspection(sessionID)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	var result aggregator.InspectionResult
	defer func() { s.Sessions.EndInspection(sess, result) }()

	var req groupedInspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	product, err := s.Products.Load(sess.Product)
	if err != nil {
		respondAPIError(w, err)
		return
	}

	result, err = s.runGroupedInspection(r.Context(), sessionID, product, req)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// runGroupedInspection builds the CaptureKey->CaptureGroup map keyed
// by each group's own (focus, exposure), resolves every group's image,
// and runs the shared pipeline.
func (s *Server) runGroupedInspection(ctx context.Context, sessionID uuid.UUID, product products.Product, req groupedInspectRequest) (aggregator.InspectionResult, error) {
	byKey := orchestrator.GroupROIsByCaptureKey(product.ROIs)
	groups := make(map[orchestrator.CaptureKey]orchestrator.CaptureGroup, len(req.Groups))
	loaded := make(map[orchestrator.CaptureKey]image.Image, len(req.Groups))

	for _, gp := range req.Groups {
		key := orchestrator.CaptureKey{Focus: gp.Focus, Exposure: gp.Exposure}
		groups[key] = orchestrator.CaptureGroup{ImagePath: gp.label(), ROIs: byKey[key]}

		img, err := s.resolveRef(sessionID, gp.imageRef)
		if err != nil {
			return aggregator.InspectionResult{}, err
		}
		if img != nil {
			loaded[key] = img
		}
	}
	return s.runInspectionPreloaded(ctx, sessionID, product, groups, loaded, aggregator.InspectRequest{
		DeviceBarcodes: req.DeviceBarcodes, DeviceBarcode: req.DeviceBarcode,
	})
}

// handleLegacyGroupedInspection bridges the pre-session-API entry
// point: it accepts an explicit session_id field instead of a URL
// parameter, everything else matches grouped_inspect (spec §6 legacy
// grouped entry-point).
func (s *Server) handleLegacyGroupedInspection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		groupedInspectRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session_id")
		return
	}
	sess, err := s.Sessions.BeginInspection(sessionID)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	var result aggregator.InspectionResult
	defer func() { s.Sessions.EndInspection(sess, result) }()

	product, err := s.Products.Load(sess.Product)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	result, err = s.runGroupedInspection(r.Context(), sessionID, product, req.groupedInspectRequest)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
