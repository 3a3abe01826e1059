package golden

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveBacksUpExistingBest(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	require.NoError(t, lib.Save("widget-a", 2, []byte("v1")))
	require.NoError(t, lib.Save("widget-a", 2, []byte("v2")))

	samples, err := lib.List("widget-a", 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.True(t, samples[0].IsBest)

	dir := lib.dirFor("widget-a", 2)
	data, err := os.ReadFile(filepath.Join(dir, bestFilename))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestPromoteFromAlternative(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	require.NoError(t, lib.Save("widget-a", 2, []byte("v1")))
	require.NoError(t, lib.Save("widget-a", 2, []byte("v2")))

	samples, err := lib.List("widget-a", 2)
	require.NoError(t, err)
	var alt string
	for _, s := range samples {
		if !s.IsBest {
			alt = s.Name
		}
	}
	require.NotEmpty(t, alt)

	require.NoError(t, lib.Promote("widget-a", 2, alt))
	data, err := os.ReadFile(filepath.Join(lib.dirFor("widget-a", 2), bestFilename))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestDeleteForbiddenWhenOnlyFile(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	require.NoError(t, lib.Save("widget-a", 2, []byte("v1")))

	err := lib.Delete("widget-a", 2, bestFilename)
	require.Error(t, err)
}

func TestDeleteAllowedWithAlternativePresent(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	require.NoError(t, lib.Save("widget-a", 2, []byte("v1")))
	require.NoError(t, lib.Save("widget-a", 2, []byte("v2")))

	samples, _ := lib.List("widget-a", 2)
	var alt string
	for _, s := range samples {
		if !s.IsBest {
			alt = s.Name
		}
	}
	require.NoError(t, lib.Delete("widget-a", 2, alt))

	samples, err := lib.List("widget-a", 2)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestRenameFoldersTwoPhase(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	require.NoError(t, lib.Save("widget-a", 1, []byte("a")))
	require.NoError(t, lib.Save("widget-a", 2, []byte("b")))

	require.NoError(t, lib.RenameFolders("widget-a", map[int]int{1: 10, 2: 20}))

	_, err := lib.List("widget-a", 1)
	require.NoError(t, err)
	s1, _ := lib.List("widget-a", 10)
	assert.Len(t, s1, 1)
	s2, _ := lib.List("widget-a", 20)
	assert.Len(t, s2, 1)
}

func TestRemoveROIDirs(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	require.NoError(t, lib.Save("widget-a", 5, []byte("a")))

	require.NoError(t, lib.RemoveROIDirs("widget-a", []int{5}))
	samples, err := lib.List("widget-a", 5)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestOnChangeCallbackFires(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	var calledProduct string
	var calledROI int
	lib.OnChange(func(product string, roiID int) {
		calledProduct, calledROI = product, roiID
	})

	require.NoError(t, lib.Save("widget-a", 3, []byte("a")))
	assert.Equal(t, "widget-a", calledProduct)
	assert.Equal(t, 3, calledROI)
}
