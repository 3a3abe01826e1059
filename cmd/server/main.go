// Command server is the AOI inspection server's composition root: it
// wires the shared filesystem, product/golden stores, analyzer
// capabilities, session manager and HTTP surface together, then serves
// until signaled to stop.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/visual-aoi/internal/analyzers"
	"github.com/technosupport/visual-aoi/internal/api"
	"github.com/technosupport/visual-aoi/internal/auditlog"
	"github.com/technosupport/visual-aoi/internal/config"
	"github.com/technosupport/visual-aoi/internal/eventbus"
	"github.com/technosupport/visual-aoi/internal/golden"
	"github.com/technosupport/visual-aoi/internal/inspection"
	"github.com/technosupport/visual-aoi/internal/linking"
	"github.com/technosupport/visual-aoi/internal/platform/paths"
	"github.com/technosupport/visual-aoi/internal/products"
	"github.com/technosupport/visual-aoi/internal/sharedfs"
)

func main() {
	cfgPath := paths.ResolveConfigPath(os.Getenv("AOI_CONFIG"))
	watcher := config.NewWatcher(cfgPath)
	cfg := watcher.Current()

	sharedRoot := cfg.Server.SharedRoot
	if sharedRoot == "" {
		sharedRoot = paths.ResolveSharedRoot()
	}
	if err := paths.EnsureDirs(sharedRoot); err != nil {
		log.Fatalf("shared root init error: %v", err)
	}

	stop := make(chan struct{})
	watcher.Start(stop)

	fs := sharedfs.NewRoot(sharedRoot, cfg.Server.ClientMountPrefix)

	var cache products.Cache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[main] redis unreachable, continuing without product cache: %v", err)
		} else {
			cache = products.NewRedisCache(rdb, 10*time.Minute)
		}
	}
	productStore := products.NewStore(sharedRoot, cache)
	goldenLib := golden.NewLibrary(sharedRoot)

	idleTimeout := time.Duration(cfg.Inspection.SessionIdleMinutes) * time.Minute
	sessions := inspection.NewManager(fs, idleTimeout)
	sessionsCtx, cancelSessions := context.WithCancel(context.Background())
	sessions.Start(sessionsCtx)

	linkTimeout := time.Duration(cfg.Linking.TimeoutSeconds) * time.Second
	linker := linking.New(cfg.Linking.BaseURL, linkTimeout, cfg.Linking.CacheSize)

	var auditSvc *auditlog.Service
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Printf("[main] postgres open failed, audit trail disabled: %v", err)
		} else if err := db.Ping(); err != nil {
			log.Printf("[main] postgres unreachable, audit trail disabled: %v", err)
		} else {
			auditlog.ConfigureFailover(os.Getenv("AOI_AUDIT_SPOOL_DIR"), 1024)
			auditSvc = auditlog.NewService(db)
			auditSvc.StartReplayer(context.Background())
		}
	}

	var publisher *eventbus.Publisher
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("visual-aoi"))
		if err != nil {
			log.Printf("[main] NATS connect failed, event publishing disabled: %v", err)
		} else {
			publisher = eventbus.NewPublisher(nc, 3)
			defer nc.Close()
		}
	}

	// The three ML/CV capabilities are simulated until a real backend is
	// wired in (spec §4.4: "Unavailable falls back to simulation mode").
	sim := analyzers.Simulated{}
	srv := api.NewServer(cfg, fs, productStore, goldenLib, sessions, linker, auditSvc, publisher, sim, sim, sim)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("[main] metrics listening on %s", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
				log.Printf("[main] metrics server error: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("[main] inspection server listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("[main] shutdown requested")

	close(stop)
	cancelSessions()
	sessions.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[main] graceful shutdown error: %v", err)
	}
	fmt.Println("[main] server stopped")
}
