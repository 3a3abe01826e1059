package sharedfs

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/visual-aoi/internal/apierrors"
	"github.com/technosupport/visual-aoi/internal/imaging"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	tmp := filepath.Join(os.TempDir(), "aoi_sharedfs_test", uuid.NewString())
	require.NoError(t, os.MkdirAll(tmp, 0750))
	t.Cleanup(func() { os.RemoveAll(tmp) })
	return NewRoot(tmp, "/mnt/visual-aoi-shared/")
}

func TestCreateAndRemoveSessionDirs(t *testing.T) {
	r := newTestRoot(t)
	id := uuid.New()

	require.NoError(t, r.CreateSessionDirs(id))
	assert.DirExists(t, filepath.Join(r.sessionDir(id), "input"))
	assert.DirExists(t, filepath.Join(r.sessionDir(id), "output"))

	require.NoError(t, r.RemoveSessionDirs(id))
	assert.NoDirExists(t, r.sessionDir(id))

	// idempotent on an already-removed directory
	assert.NoError(t, r.RemoveSessionDirs(id))
}

func TestLoadInputMissingFile(t *testing.T) {
	r := newTestRoot(t)
	id := uuid.New()
	require.NoError(t, r.CreateSessionDirs(id))

	_, err := r.LoadInput(id, "missing.jpg")
	require.Error(t, err)
	assert.Equal(t, apierrors.NotFound, apierrors.KindOf(err))
}

func TestLoadInputTraversalRejected(t *testing.T) {
	r := newTestRoot(t)
	id := uuid.New()
	require.NoError(t, r.CreateSessionDirs(id))

	_, err := r.LoadInput(id, "../../../etc/passwd")
	require.Error(t, err)
	assert.Equal(t, apierrors.Validation, apierrors.KindOf(err))
}

func TestSaveROICropAndRoundTripLoad(t *testing.T) {
	r := newTestRoot(t)
	id := uuid.New()
	require.NoError(t, r.CreateSessionDirs(id))

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}

	serverPath, err := r.SaveROICrop(id, 0, img)
	require.NoError(t, err)
	assert.FileExists(t, serverPath)

	clientPath := r.ToClientPath(serverPath)
	assert.Contains(t, clientPath, "/mnt/visual-aoi-shared/sessions/")
	assert.Contains(t, clientPath, "roi_0.jpg")

	loaded, err := r.LoadAbsolute(clientPath)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Image.Bounds().Dx())
}

func TestSaveGoldenCropUsesDistinctFilename(t *testing.T) {
	r := newTestRoot(t)
	id := uuid.New()
	require.NoError(t, r.CreateSessionDirs(id))

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	path, err := r.SaveGoldenCrop(id, 3, img)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "golden_3.jpg")

	// ensure it round-trips through the real codec, not a stub
	decoded, err := r.LoadAbsolute(path)
	require.NoError(t, err)
	assert.NotNil(t, imaging.DominantChannel(decoded.Image))
}
