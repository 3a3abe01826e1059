package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/visual-aoi/internal/apierrors"
)

func parseROIParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierrors.New(apierrors.Validation, "roi id must be an integer: "+raw, err)
	}
	return id, nil
}

// handleGoldenList enumerates a ROI's golden samples (spec §6 GET
// /api/golden-sample/{product}/{roi}).
func (s *Server) handleGoldenList(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	roiID, err := parseROIParam(r, "roi")
	if err != nil {
		respondAPIError(w, err)
		return
	}
	samples, err := s.Golden.List(product, roiID)
	if err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

// handleGoldenMetadata is the same enumeration as handleGoldenList,
// exposed at a distinct path for clients that want the metadata
// without implying a download (spec §6).
func (s *Server) handleGoldenMetadata(w http.ResponseWriter, r *http.Request) {
	s.handleGoldenList(w, r)
}

// handleGoldenDownload streams one golden sample file (spec §6 GET
// /api/golden-sample/{product}/{roi}/download/{file}).
func (s *Server) handleGoldenDownload(w http.ResponseWriter, r *http.Request) {
	product := chi.URLParam(r, "product")
	roiID, err := parseROIParam(r, "roi")
	if err != nil {
		respondAPIError(w, err)
		return
	}
	name := chi.URLParam(r, "file")
	path := filepath.Join(s.Golden.Dir(product, roiID), filepath.Base(name))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			respondError(w, http.StatusNotFound, "golden sample not found: "+name)
			return
		}
		respondAPIError(w, apierrors.New(apierrors.IO, "open golden sample", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	io.Copy(w, f)
}

// handleGoldenSave accepts a multipart upload and writes it as the new
// best_golden.jpg (spec §6 POST /api/golden-sample/save, spec §4.3
// Save).
func (s *Server) handleGoldenSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "malformed multipart form")
		return
	}
	product := r.FormValue("product")
	roiID, err := strconv.Atoi(r.FormValue("roi"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "roi must be an integer")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondAPIError(w, apierrors.New(apierrors.IO, "read uploaded file", err))
		return
	}
	if err := s.Golden.Save(product, roiID, data); err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

type goldenProductROIRequest struct {
	Product     string `json:"product"`
	ROIID       int    `json:"roi"`
	Alternative string `json:"alternative,omitempty"`
	Name        string `json:"name,omitempty"`
}

// handleGoldenPromote promotes an alternative sample to best_golden.jpg
// (spec §6 POST /api/golden-sample/promote, spec §4.3 Promote).
func (s *Server) handleGoldenPromote(w http.ResponseWriter, r *http.Request) {
	var req goldenProductROIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.Golden.Promote(req.Product, req.ROIID, req.Alternative); err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "promoted"})
}

// handleGoldenRestore restores a named backup to best_golden.jpg (spec
// §6 POST /api/golden-sample/restore, spec §4.3 Restore).
func (s *Server) handleGoldenRestore(w http.ResponseWriter, r *http.Request) {
	var req goldenProductROIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.Golden.Restore(req.Product, req.ROIID, req.Alternative); err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// handleGoldenDelete removes a named golden sample, rejecting if it
// would empty the directory (spec §6 DELETE /api/golden-sample/delete,
// spec §4.3 Delete).
func (s *Server) handleGoldenDelete(w http.ResponseWriter, r *http.Request) {
	var req goldenProductROIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.Golden.Delete(req.Product, req.ROIID, req.Name); err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type renameFoldersRequest struct {
	Product  string      `json:"product"`
	OldToNew map[string]int `json:"old_to_new"`
}

// handleGoldenRenameFolders renumbers ROI golden directories after a
// ROI list edit (spec §6 POST /api/golden-sample/rename-folders, spec
// §4.3 RenameFolders).
func (s *Server) handleGoldenRenameFolders(w http.ResponseWriter, r *http.Request) {
	var req renameFoldersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	mapping := make(map[int]int, len(req.OldToNew))
	for oldStr, newID := range req.OldToNew {
		oldID, err := strconv.Atoi(oldStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "old_to_new keys must be integers")
			return
		}
		mapping[oldID] = newID
	}
	if err := s.Golden.RenameFolders(req.Product, mapping); err != nil {
		respondAPIError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}
