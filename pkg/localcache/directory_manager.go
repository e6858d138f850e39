package localcache

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/distflow/localizer/pkg/containers"
)

// DirectoryManager assigns relative sub-paths under one cache root so
// that no single directory acquires an unbounded number of entries.
// The first allocations land in the root itself (the empty relative
// path). Once a directory reaches its file limit, the manager opens a
// new sibling, 36 per level, descending a level when a level is
// exhausted.
//
// Every path handed out by RelativePathForLocalization must eventually
// be given back through exactly one DecrementFileCountForPath call.
type DirectoryManager struct {
	perDirectoryFileLimit int

	mu sync.Mutex
	// nonFull holds the directories that can still take files, the
	// front one being the current allocation target.
	nonFull *containers.SliceQueue[*subDirectory]
	// known indexes every directory ever opened by its relative path.
	known map[string]*subDirectory

	totalSubDirectories int
	outstanding         int
}

// NewDirectoryManager creates a manager for one cache root. The config
// must have been adjusted; a zero or undersized limit is replaced with
// the default.
func NewDirectoryManager(cfg Config) *DirectoryManager {
	if cfg.MaxFilesPerDirectory < minMaxFilesPerDirectory {
		log.L().Warn("max files per directory is configured with a very low value, using default",
			zap.Int("configured", cfg.MaxFilesPerDirectory),
			zap.Int("default", defaultMaxFilesPerDirectory))
		cfg.MaxFilesPerDirectory = defaultMaxFilesPerDirectory
	}

	m := &DirectoryManager{
		perDirectoryFileLimit: cfg.MaxFilesPerDirectory - DirectoriesPerLevel,
		nonFull:               containers.NewSliceQueue[*subDirectory](),
		known:                 make(map[string]*subDirectory),
	}

	root := newSubDirectory(0)
	m.known[root.relativePath] = root
	m.nonFull.Add(root)
	return m
}

// RelativePathForLocalization returns the relative sub-path the next
// localized resource should be placed under, incrementing that path's
// file count. The empty string denotes the cache root itself, which is
// the common case until the root fills up.
func (m *DirectoryManager) RelativePathForLocalization() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nonFull.Size() == 0 {
		m.totalSubDirectories++
		dir := newSubDirectory(m.totalSubDirectories)
		m.known[dir.relativePath] = dir
		m.nonFull.Add(dir)
	}

	dir, _ := m.nonFull.Peek()
	m.outstanding++
	if dir.incrementAndGetCount() >= m.perDirectoryFileLimit {
		m.nonFull.Pop()
	}
	return dir.relativePath
}

// DecrementFileCountForPath gives back one file count for the given
// relative sub-path. A full directory whose count drops below the
// limit becomes an allocation target again.
func (m *DirectoryManager) DecrementFileCountForPath(relPath string) {
	relPath = strings.TrimSpace(relPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	dir, ok := m.known[relPath]
	if !ok {
		log.L().Warn("decrement for a sub-path this directory manager never assigned",
			zap.String("relative-path", relPath))
		return
	}

	m.outstanding--
	oldCount := dir.count
	if dir.decrementAndGetCount() < m.perDirectoryFileLimit &&
		oldCount >= m.perDirectoryFileLimit {
		m.nonFull.Add(dir)
	}
}

// OutstandingFileCount returns the aggregate number of assignments that
// have not been decremented yet.
func (m *DirectoryManager) OutstandingFileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.outstanding
}

type subDirectory struct {
	relativePath string
	count        int
}

// newSubDirectory maps the n-th opened directory to its relative path.
// Directory 0 is the cache root itself, i.e. the empty path. Later
// directories are named by the base-36 digits of n-1, one digit per
// level: 1 -> "0", 36 -> "z", 37 -> "0/0" and so on. The leading digit
// is shifted down by one so deeper levels reuse the "0" branch.
func newSubDirectory(n int) *subDirectory {
	if n == 0 {
		return &subDirectory{}
	}

	digits := strconv.FormatInt(int64(n-1), DirectoriesPerLevel)
	if len(digits) == 1 {
		return &subDirectory{relativePath: digits}
	}

	lead, err := strconv.ParseInt(digits[:1], DirectoriesPerLevel, 64)
	if err != nil {
		// Unreachable: digits come from FormatInt above.
		log.L().Panic("malformed sub-directory number",
			zap.Int("n", n), zap.Error(err))
	}
	parts := make([]string, 0, len(digits))
	parts = append(parts, strconv.FormatInt(lead-1, DirectoriesPerLevel))
	for _, ch := range digits[1:] {
		parts = append(parts, string(ch))
	}
	return &subDirectory{relativePath: strings.Join(parts, "/")}
}

func (d *subDirectory) incrementAndGetCount() int {
	d.count++
	return d.count
}

func (d *subDirectory) decrementAndGetCount() int {
	if d.count > 0 {
		d.count--
	}
	return d.count
}
