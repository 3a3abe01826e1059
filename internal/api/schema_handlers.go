package api

import "net/http"

const schemaVersion = "1.0"

// handleSchemaROI documents the canonical 12-field ROI shape so thin
// clients can validate before submitting (spec §6 GET
// /api/schema/roi).
func (s *Server) handleSchemaROI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"fields": []string{
			"idx", "type", "x1", "y1", "x2", "y2", "focus", "exposure",
			"device_location", "rotation", "ai_threshold", "feature_method",
			"expected_text", "is_device_barcode", "color_config",
		},
		"types": map[string]int{"barcode": 1, "compare": 2, "ocr": 3, "color": 4},
	})
}

// handleSchemaResult documents the ROIResult/OverallResult shape (spec
// §6 GET /api/schema/result).
func (s *Server) handleSchemaResult(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"roi_result_fields": []string{
			"roi_id", "device_id", "roi_type_name", "passed", "coordinates",
			"roi_image_path", "golden_image_path", "error",
			"barcode_values", "match_result", "ai_similarity", "threshold",
			"ocr_text", "detected_color", "match_percentage", "dominant_color",
		},
		"overall_result_fields": []string{"passed", "total_rois", "passed_rois", "failed_rois", "processing_time"},
	})
}

// handleSchemaVersion reports the wire schema version (spec §6 GET
// /api/schema/version).
func (s *Server) handleSchemaVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": schemaVersion})
}
