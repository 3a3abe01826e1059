package api

import (
	"encoding/json"
	"net/http"

	"github.com/technosupport/visual-aoi/internal/apierrors"
)

// respondJSON and respondError mirror the teacher's camera_handlers.go
// helpers of the same name.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondAPIError maps an apierrors.Error (or any error) to its HTTP
// status and body per spec §7, including per-item validation messages
// when present.
func respondAPIError(w http.ResponseWriter, err error) {
	status := apierrors.HTTPStatus(err)
	body := map[string]any{"error": err.Error()}
	if items := apierrors.Items(err); len(items) > 0 {
		body["validation_errors"] = items
	}
	respondJSON(w, status, body)
}
