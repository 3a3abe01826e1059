// Package config loads config/default.yaml and watches it for
// out-of-band edits. A reload replaces the whole struct returned by
// Watcher.Current; inspection.worker_pool_size and
// inspection.compare_threshold are loaded but no other package reads
// them.
package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the full shape of config/default.yaml. Fields absent from
// the file keep the package defaults (see Load).
type Config struct {
	Server struct {
		Addr              string `yaml:"addr"`
		SharedRoot        string `yaml:"shared_root"`
		ClientMountPrefix string `yaml:"client_mount_prefix"`
	} `yaml:"server"`

	Inspection struct {
		WorkerPoolSize    int     `yaml:"worker_pool_size"`
		CompareThreshold  float64 `yaml:"compare_threshold"`
		SessionIdleMinutes int    `yaml:"session_idle_minutes"`
	} `yaml:"inspection"`

	Redis struct {
		Addr    string `yaml:"addr"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"redis"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	NATS struct {
		URL     string `yaml:"url"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"nats"`

	Linking struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		CacheSize      int    `yaml:"cache_size"`
	} `yaml:"linking"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

func defaults() Config {
	var c Config
	c.Server.Addr = ":8080"
	c.Server.SharedRoot = "./shared"
	c.Server.ClientMountPrefix = "/mnt/visual-aoi-shared/"
	c.Inspection.WorkerPoolSize = 0 // not read: orchestrator.Run always uses min(NumCPU, total_rois)
	c.Inspection.CompareThreshold = 0.85
	c.Inspection.SessionIdleMinutes = 60
	c.Redis.Addr = "localhost:6379"
	c.NATS.URL = "nats://localhost:4222"
	c.Linking.TimeoutSeconds = 5
	c.Linking.CacheSize = 4096
	c.Metrics.Addr = ":9090"
	return c
}

// Load decodes path over the package defaults, so fields absent from
// the file keep their default value. A missing or malformed file is
// logged (not failed) and yields the defaults, matching
// the composition root's existing tolerance for an absent config file
// during first-run setup.
func Load(path string) Config {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] %s not found, using defaults: %v", path, err)
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("[config] failed to parse %s, using defaults: %v", path, err)
		return defaults()
	}
	return cfg
}

// Watcher reloads a Config from disk and stores the fresh value; there
// is no reload callback. Callers re-read the whole struct through
// Current and pick out what they care about.
type Watcher struct {
	mu   sync.RWMutex
	path string
	cur  Config
}

// NewWatcher loads path once and returns a Watcher holding the result.
func NewWatcher(path string) *Watcher {
	return &Watcher{path: path, cur: Load(path)}
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Start watches the config file for writes and reloads on change,
// falling back to a 60s poll if the watch itself can't be established
// (fsnotify on some filesystems/containers never fires).
func (w *Watcher) Start(done <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Printf("[config] fsnotify unavailable, falling back to polling: %v", err)
		usePolling = true
	} else if err := watcher.Add(w.path); err != nil {
		log.Printf("[config] watch %s failed, falling back to polling: %v", w.path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-done:
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						time.Sleep(100 * time.Millisecond)
						w.reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[config] watch error: %v", err)
				}
			}
		}()
		return
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				w.reload()
			}
		}
	}()
}

func (w *Watcher) reload() {
	fresh := Load(w.path)
	w.mu.Lock()
	w.cur = fresh
	w.mu.Unlock()
	log.Printf("[config] reloaded %s", w.path)
}
