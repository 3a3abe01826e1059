// Package api is the chi-routed HTTP surface over the inspection
// pipeline (spec §6), grounded on the teacher's api package: handlers
// are thin, services do the work, respondJSON/respondError translate
// results to the wire.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/technosupport/visual-aoi/internal/analyzers"
	"github.com/technosupport/visual-aoi/internal/auditlog"
	"github.com/technosupport/visual-aoi/internal/config"
	"github.com/technosupport/visual-aoi/internal/eventbus"
	"github.com/technosupport/visual-aoi/internal/golden"
	"github.com/technosupport/visual-aoi/internal/inspection"
	"github.com/technosupport/visual-aoi/internal/linking"
	"github.com/technosupport/visual-aoi/internal/products"
	"github.com/technosupport/visual-aoi/internal/sharedfs"
)

// Server bundles every service the HTTP layer dispatches into. Built
// once by cmd/server's composition root.
type Server struct {
	Config config.Config

	FS       *sharedfs.Root
	Products *products.Store
	Golden   *golden.Library
	Sessions *inspection.Manager
	Linker   *linking.Client
	Audit    *auditlog.Service
	Events   *eventbus.Publisher

	Decoder   analyzers.BarcodeDecoder
	Extractor analyzers.FeatureExtractor
	OCR       analyzers.OCREngine

	startedAt time.Time
}

// NewServer wires svc into a Server ready to build a Router.
func NewServer(cfg config.Config, fs *sharedfs.Root, prod *products.Store, lib *golden.Library,
	sessions *inspection.Manager, linker *linking.Client, audit *auditlog.Service, events *eventbus.Publisher,
	decoder analyzers.BarcodeDecoder, extractor analyzers.FeatureExtractor, ocr analyzers.OCREngine) *Server {
	return &Server{
		Config: cfg, FS: fs, Products: prod, Golden: lib, Sessions: sessions, Linker: linker,
		Audit: audit, Events: events, Decoder: decoder, Extractor: extractor, OCR: ocr,
		startedAt: time.Now(),
	}
}

// Router builds the full chi mount per spec.md §6's route table.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/initialize", s.handleInitialize)

	r.Get("/api/products", s.handleListProducts)
	r.Post("/api/products/create", s.handleCreateProduct)
	r.Get("/api/products/{name}/rois", s.handleGetROIs)
	r.Post("/api/products/{name}/rois", s.handleSaveROIs)
	r.Get("/api/products/{name}/colors", s.handleGetColors)
	r.Post("/api/products/{name}/colors", s.handleSaveColors)

	r.Post("/api/session/create", s.handleSessionCreate)
	r.Get("/api/session/{id}/close", s.handleSessionClose)
	r.Post("/api/session/{id}/close", s.handleSessionClose)
	r.Post("/api/session/{id}/inspect", s.handleSessionInspect)
	r.Post("/api/session/{id}/grouped_inspect", s.handleSessionGroupedInspect)
	r.Post("/process_grouped_inspection", s.handleLegacyGroupedInspection)
	r.Get("/get_roi_groups/{product}", s.handleGetROIGroups)

	r.Get("/api/golden-sample/{product}/{roi}", s.handleGoldenList)
	r.Get("/api/golden-sample/{product}/{roi}/metadata", s.handleGoldenMetadata)
	r.Get("/api/golden-sample/{product}/{roi}/download/{file}", s.handleGoldenDownload)
	r.Post("/api/golden-sample/save", s.handleGoldenSave)
	r.Post("/api/golden-sample/promote", s.handleGoldenPromote)
	r.Post("/api/golden-sample/restore", s.handleGoldenRestore)
	r.Delete("/api/golden-sample/delete", s.handleGoldenDelete)
	r.Post("/api/golden-sample/rename-folders", s.handleGoldenRenameFolders)

	r.Get("/api/schema/roi", s.handleSchemaROI)
	r.Get("/api/schema/result", s.handleSchemaResult)
	r.Get("/api/schema/version", s.handleSchemaVersion)

	return r
}

// requestLogger matches the teacher's "[Component] message" prefixed
// logging convention, upgraded to include the method/path/duration
// every request carries (spec supplement: ambient logging).
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[api] %s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
