package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/visual-aoi/internal/analyzers"
	"github.com/technosupport/visual-aoi/internal/config"
	"github.com/technosupport/visual-aoi/internal/golden"
	"github.com/technosupport/visual-aoi/internal/inspection"
	"github.com/technosupport/visual-aoi/internal/products"
	"github.com/technosupport/visual-aoi/internal/sharedfs"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	fs := sharedfs.NewRoot(root, "/client")
	prodStore := products.NewStore(root, nil)
	lib := golden.NewLibrary(root)
	sessions := inspection.NewManager(fs, 0)
	sim := analyzers.Simulated{}
	return NewServer(config.Config{}, fs, prodStore, lib, sessions, nil, nil, nil, sim, sim, sim)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsActiveSessions(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["active_sessions"])
}

func TestCreateAndListProducts(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/products/create", map[string]any{"name": "widget-a", "num_devices": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	names, ok := body["products"].([]any)
	require.True(t, ok)
	assert.Contains(t, names, "widget-a")
}

func TestCreateProductRejectsDuplicateName(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/api/products/create", map[string]any{"name": "widget-a", "num_devices": 1}).Code)
	rec := doJSON(t, srv, http.MethodPost, "/api/products/create", map[string]any{"name": "widget-a", "num_devices": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionCreateAndClose(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/api/products/create", map[string]any{"name": "widget-a", "num_devices": 1}).Code)

	rec := doJSON(t, srv, http.MethodPost, "/api/session/create", map[string]any{"product_name": "widget-a"})
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	sessionID := created["session_id"]
	require.NotEmpty(t, sessionID)

	rec = doJSON(t, srv, http.MethodGet, "/api/health", nil)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, float64(1), health["active_sessions"])

	rec = doJSON(t, srv, http.MethodPost, "/api/session/"+sessionID+"/close", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionCloseUnknownIDIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/session/00000000-0000-0000-0000-000000000000/close", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchemaEndpointsReportWireShape(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/schema/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var version map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, schemaVersion, version["version"])

	rec = doJSON(t, srv, http.MethodGet, "/api/schema/roi", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/schema/result", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetROIGroupsGroupsByFocusAndExposure(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/api/products/create", map[string]any{"name": "widget-a", "num_devices": 1}).Code)

	rec := doJSON(t, srv, http.MethodGet, "/get_roi_groups/widget-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	groups, ok := body["groups"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, groups)
}

func TestGoldenListEmptyDirReturnsEmptySamples(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/api/products/create", map[string]any{"name": "widget-a", "num_devices": 1}).Code)

	rec := doJSON(t, srv, http.MethodGet, "/api/golden-sample/widget-a/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body["samples"])
}
