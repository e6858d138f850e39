package localcache

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	derror "github.com/distflow/localizer/pkg/errors"
)

func TestConfigAdjust(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Adjust())
	require.Equal(t, defaultMaxFilesPerDirectory, cfg.MaxFilesPerDirectory)

	cfg = Config{MaxFilesPerDirectory: 36}
	err := cfg.Adjust()
	require.Error(t, err)
	require.True(t, derror.ErrInvalidCacheCapacity.Equal(err))

	cfg = Config{MaxFilesPerDirectory: 37}
	require.NoError(t, cfg.Adjust())
}

// With the minimum capacity every directory takes exactly one file, so
// the full base-36 naming scheme is exercised quickly.
func TestRelativePathAssignment(t *testing.T) {
	m := NewDirectoryManager(Config{MaxFilesPerDirectory: minMaxFilesPerDirectory})

	require.Equal(t, "", m.RelativePathForLocalization())

	for i := 0; i < DirectoriesPerLevel; i++ {
		expected := strconv.FormatInt(int64(i), DirectoriesPerLevel)
		require.Equal(t, expected, m.RelativePathForLocalization())
	}

	// The first level is exhausted, the next directory opens a deeper
	// level under the "0" branch.
	require.Equal(t, "0/0", m.RelativePathForLocalization())
	require.Equal(t, "0/1", m.RelativePathForLocalization())
}

func TestDecrementReopensDirectory(t *testing.T) {
	m := NewDirectoryManager(Config{MaxFilesPerDirectory: minMaxFilesPerDirectory})

	require.Equal(t, "", m.RelativePathForLocalization())
	require.Equal(t, "0", m.RelativePathForLocalization())

	// Freeing the root makes it an allocation target again.
	m.DecrementFileCountForPath("")
	require.Equal(t, "", m.RelativePathForLocalization())
}

func TestDecrementUnknownPathIsNoop(t *testing.T) {
	m := NewDirectoryManager(NewConfig())
	m.DecrementFileCountForPath("not/assigned")
	require.Equal(t, 0, m.OutstandingFileCount())
}

func TestOutstandingCountBalance(t *testing.T) {
	const n = 100

	m := NewDirectoryManager(Config{MaxFilesPerDirectory: minMaxFilesPerDirectory})

	assigned := make([]string, 0, n)
	for i := 0; i < n; i++ {
		assigned = append(assigned, m.RelativePathForLocalization())
	}
	require.Equal(t, n, m.OutstandingFileCount())

	for _, relPath := range assigned {
		m.DecrementFileCountForPath(relPath)
	}
	require.Equal(t, 0, m.OutstandingFileCount())
}

func TestUndersizedLimitFallsBackToDefault(t *testing.T) {
	m := NewDirectoryManager(Config{MaxFilesPerDirectory: 1})
	require.Equal(t, defaultMaxFilesPerDirectory-DirectoriesPerLevel, m.perDirectoryFileLimit)
}

func TestConcurrentAssignments(t *testing.T) {
	const (
		workerNum        = 8
		assignsPerWorker = 200
	)

	m := NewDirectoryManager(Config{MaxFilesPerDirectory: minMaxFilesPerDirectory})

	relPaths := make(chan string, workerNum*assignsPerWorker)
	done := make(chan struct{})
	for i := 0; i < workerNum; i++ {
		go func() {
			for j := 0; j < assignsPerWorker; j++ {
				relPaths <- m.RelativePathForLocalization()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < workerNum; i++ {
		<-done
	}
	close(relPaths)

	require.Equal(t, workerNum*assignsPerWorker, m.OutstandingFileCount())

	// Capacity one per directory: no relative path may be assigned twice.
	seen := make(map[string]int)
	for relPath := range relPaths {
		seen[relPath]++
		require.Equal(t, 1, seen[relPath], fmt.Sprintf("path %q assigned twice", relPath))
		m.DecrementFileCountForPath(relPath)
	}
	require.Equal(t, 0, m.OutstandingFileCount())
}
