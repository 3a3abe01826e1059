// Package sharedfs mediates session-workspace I/O on the shared-filesystem
// tree laid out under one configurable root (spec §4.1, §6): session
// directories, input image loads and output crop writes. The product,
// golden and audit stores read and write their own files directly.
package sharedfs

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/technosupport/visual-aoi/internal/apierrors"
	"github.com/technosupport/visual-aoi/internal/imaging"
	"github.com/technosupport/visual-aoi/internal/platform/paths"
)

// LoadedImage wraps a decoded image with the server path it was read
// from, so callers that need to re-derive a client path don't have to
// re-resolve it.
type LoadedImage struct {
	Image      image.Image
	ServerPath string
}

// Root mediates all shared-folder I/O.
type Root struct {
	serverRoot  string
	clientMount string
}

// NewRoot builds a Root rooted at serverRoot; paths returned to clients
// are rewritten under clientMount (spec §4.1 policy).
func NewRoot(serverRoot, clientMount string) *Root {
	if clientMount == "" {
		clientMount = paths.DefaultClientMountPrefix
	}
	if !strings.HasSuffix(clientMount, "/") {
		clientMount += "/"
	}
	return &Root{serverRoot: serverRoot, clientMount: clientMount}
}

func (r *Root) sessionDir(id uuid.UUID) string {
	return filepath.Join(r.serverRoot, "sessions", id.String())
}

// CreateSessionDirs creates a fresh sessions/<uuid>/{input,output} tree
// (spec §3 Session lifetime: "directories are recreated fresh on
// creation").
func (r *Root) CreateSessionDirs(id uuid.UUID) error {
	dir := r.sessionDir(id)
	if err := os.RemoveAll(dir); err != nil {
		return apierrors.New(apierrors.IO, "remove stale session dir", err)
	}
	for _, sub := range []string{"input", "output"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0750); err != nil {
			return apierrors.New(apierrors.IO, "create session dir", err)
		}
	}
	return nil
}

// RemoveSessionDirs deletes a session's scratch directory. Always
// attempted, even if the directory is already gone (spec §4.6: "Close
// is idempotent and always attempts directory removal").
func (r *Root) RemoveSessionDirs(id uuid.UUID) error {
	if err := os.RemoveAll(r.sessionDir(id)); err != nil {
		return apierrors.New(apierrors.IO, "remove session dir", err)
	}
	return nil
}

// LoadInput loads sessions/<uuid>/input/<filename>. A missing file is a
// client error (spec §4.1: "missing input file is a 4xx client error").
func (r *Root) LoadInput(id uuid.UUID, filename string) (LoadedImage, error) {
	abs, err := paths.SafeJoin(r.sessionDir(id), "input", filename)
	if err != nil {
		return LoadedImage{}, apierrors.New(apierrors.Validation, "invalid input filename", err)
	}
	return r.loadFile(abs)
}

// LoadAbsolute loads an arbitrary server-rooted path, rewriting a
// client-mount-prefixed path back to the server root first (spec §6:
// "the server rewrites /mnt/visual-aoi-shared/ to its own root").
func (r *Root) LoadAbsolute(clientOrServerPath string) (LoadedImage, error) {
	p := clientOrServerPath
	if strings.HasPrefix(p, r.clientMount) {
		rel := strings.TrimPrefix(p, r.clientMount)
		p = filepath.Join(r.serverRoot, rel)
	}
	return r.loadFile(p)
}

func (r *Root) loadFile(path string) (LoadedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadedImage{}, apierrors.New(apierrors.NotFound, "input image not found: "+path, err)
		}
		return LoadedImage{}, apierrors.New(apierrors.IO, "open input image", err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return LoadedImage{}, apierrors.New(apierrors.Validation, "decode input image", err)
	}
	return LoadedImage{Image: img, ServerPath: path}, nil
}

// SaveROICrop persists a processed ROI crop under
// sessions/<uuid>/output/roi_<idx>.jpg (spec §4.5). Failures here are
// non-fatal to the caller: internal/api's processROI logs and omits the path
// (spec §4.1 policy), so this returns an error the caller may choose to
// ignore rather than abort.
func (r *Root) SaveROICrop(id uuid.UUID, roiIdx int, img image.Image) (string, error) {
	return r.saveOutput(id, fmt.Sprintf("roi_%d.jpg", roiIdx), img)
}

// SaveGoldenCrop persists the resized golden that matched a Compare ROI
// under sessions/<uuid>/output/golden_<idx>.jpg (spec §4.5).
func (r *Root) SaveGoldenCrop(id uuid.UUID, roiIdx int, img image.Image) (string, error) {
	return r.saveOutput(id, fmt.Sprintf("golden_%d.jpg", roiIdx), img)
}

func (r *Root) saveOutput(id uuid.UUID, filename string, img image.Image) (string, error) {
	dir := filepath.Join(r.sessionDir(id), "output")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", apierrors.New(apierrors.IO, "mkdir output dir", err)
	}
	abs := filepath.Join(dir, filename)

	f, err := os.Create(abs)
	if err != nil {
		return "", apierrors.New(apierrors.IO, "create output file", err)
	}
	defer f.Close()

	if err := imaging.Encode(f, img); err != nil {
		return "", apierrors.New(apierrors.IO, "encode output file", err)
	}
	return abs, nil
}

// ToClientPath rewrites a server-rooted path to the client-visible mount
// prefix (spec §4.1, §6).
func (r *Root) ToClientPath(serverPath string) string {
	rel, err := filepath.Rel(r.serverRoot, serverPath)
	if err != nil {
		return serverPath
	}
	return r.clientMount + filepath.ToSlash(rel)
}

// ServerRoot exposes the configured root, mainly for sub-components
// (products/golden stores) that lay out their own trees underneath it.
func (r *Root) ServerRoot() string { return r.serverRoot }
