package localizer

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/distflow/localizer/pkg/localcache"
	"github.com/distflow/localizer/pkg/localizer/model"
)

// Deleter abstracts the deletion-execution service. Delete is
// fire-and-forget: failures are the collaborator's concern.
type Deleter interface {
	Delete(user string, path string)
}

// Per-download directories are named by a signed integer counter.
var randomDirPattern = regexp.MustCompile(`^-?\d+$`)

// ResourceTracker owns all localized resources of one ownership scope
// (a user, or an application). It applies event-driven lifecycle rules
// to a concurrent identity-to-resource map, self-heals entries whose
// backing files were deleted out-of-band, and mediates between event
// consumers and the per-root directory managers that bound cache
// fan-out.
//
// All methods are safe for concurrent use. Correctness of Remove
// against a concurrent re-request of the same identity additionally
// requires that removals are serialized with that identity's events,
// which the dispatcher provides via per-identity sharding.
type ResourceTracker struct {
	user      string
	requester DownloadRequester
	metrics   *Metrics

	// useDirectoryManager controls whether this tracker bounds the
	// fan-out of its cache roots. Application-scoped trackers keep it
	// off: their resources are removed wholesale with the application
	// and never accumulate.
	useDirectoryManager bool
	cacheConfig         localcache.Config

	mu        sync.RWMutex
	resources map[model.ResourceIdentity]*LocalizedResource

	// dirManagers maps a cache root path to its DirectoryManager,
	// created on first use.
	dirManagers sync.Map
	// inProgress maps a resource identity to its assigned destination
	// while the localization outcome is unknown.
	inProgress sync.Map
}

// NewResourceTracker creates a tracker for one ownership scope. The
// requester receives download requests of resources created by this
// tracker; metrics may be nil. cacheConfig is only consulted when
// useDirectoryManager is set.
func NewResourceTracker(
	user string,
	requester DownloadRequester,
	useDirectoryManager bool,
	cacheConfig localcache.Config,
	metrics *Metrics,
) (*ResourceTracker, error) {
	if useDirectoryManager {
		if err := cacheConfig.Adjust(); err != nil {
			return nil, err
		}
	}
	return &ResourceTracker{
		user:                user,
		requester:           requester,
		metrics:             metrics,
		useDirectoryManager: useDirectoryManager,
		cacheConfig:         cacheConfig,
		resources:           make(map[model.ResourceIdentity]*LocalizedResource),
	}, nil
}

// User returns the ownership scope this tracker serves.
func (t *ResourceTracker) User() string {
	return t.user
}

// Handle applies one resource event. REQUEST and LOCALIZED events
// resolve the identity to a live resource, creating one if the identity
// is untracked or its backing file has silently disappeared. RELEASE
// and FAILED events for untracked identities are discarded. The event
// is then forwarded to the resource's own state machine.
func (t *ResourceTracker) Handle(ev model.ResourceEvent) {
	var res *LocalizedResource
	switch ev.Type {
	case model.EventRequest, model.EventLocalized:
		res = t.resolveForLocalization(ev.Identity)
	default:
		t.mu.RLock()
		res = t.resources[ev.Identity]
		t.mu.RUnlock()
		if res == nil {
			log.L().Info("event for untracked resource, discarding",
				zap.String("user", t.user),
				zap.Stringer("event-type", ev.Type),
				zap.Stringer("resource", ev.Identity))
			return
		}
	}

	res.Handle(ev)
	if t.metrics != nil {
		t.metrics.observeEvent(ev.Type)
	}
}

// resolveForLocalization returns the live resource for the identity,
// replacing an entry whose LOCALIZED file is absent from disk. The
// lookup, the self-healing replacement and the creation are one
// critical section, so concurrent callers can never end up with two
// live instances for one identity.
func (t *ResourceTracker) resolveForLocalization(
	identity model.ResourceIdentity,
) *LocalizedResource {
	var stale *LocalizedResource

	t.mu.Lock()
	res := t.resources[identity]
	if res != nil && !isResourcePresent(res) {
		log.L().Info("localized resource is missing on disk, localizing it again",
			zap.String("user", t.user),
			zap.Stringer("resource", identity),
			zap.String("local-path", res.LocalPath()))
		delete(t.resources, identity)
		stale, res = res, nil
	}
	if res == nil {
		res = NewLocalizedResource(identity, t.requester)
		t.resources[identity] = res
	}
	size := len(t.resources)
	t.mu.Unlock()

	if stale != nil {
		t.decrementFileCountForCacheDirectory(identity, stale)
		if t.metrics != nil {
			t.metrics.SelfHealedTotal.Inc()
		}
	}
	if t.metrics != nil {
		t.metrics.TrackedResources.Set(float64(size))
	}
	return res
}

// isResourcePresent reports whether a LOCALIZED resource still has its
// backing file on disk. Resources in any other state have nothing to
// verify yet. A missing file is the expected self-healing trigger, not
// an error.
func isResourcePresent(res *LocalizedResource) bool {
	if res.State() != model.ResourceLocalized {
		return true
	}
	_, err := os.Stat(res.LocalPath())
	if err != nil && os.IsNotExist(err) {
		return false
	}
	return true
}

// Contains reports whether the tracker holds an entry for the identity.
func (t *ResourceTracker) Contains(identity model.ResourceIdentity) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.resources[identity]
	return ok
}

// Size returns the number of tracked resources.
func (t *ResourceTracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.resources)
}

// Range calls fn for every tracked resource until fn returns false. It
// iterates over a snapshot of the current entries; resources added or
// removed concurrently may or may not be observed on the next call.
func (t *ResourceTracker) Range(fn func(res *LocalizedResource) bool) {
	t.mu.RLock()
	snapshot := make([]*LocalizedResource, 0, len(t.resources))
	for _, res := range t.resources {
		snapshot = append(snapshot, res)
	}
	t.mu.RUnlock()

	for _, res := range snapshot {
		if !fn(res) {
			return
		}
	}
}

// Remove deletes the tracker's entry for res and requests the on-disk
// deletion of its allocation unit. It returns true when the resource
// was removed or was already absent, false when removal is unsafe and
// the caller must not proceed with any deletion.
//
// The candidate must be the very instance currently tracked: a stale
// reference racing a fresh re-localization of the same identity is
// refused by the instance-identity check.
func (t *ResourceTracker) Remove(res *LocalizedResource, deleter Deleter) bool {
	t.mu.Lock()
	live := t.resources[res.Request()]
	if live == nil {
		t.mu.Unlock()
		// A caller-side bookkeeping bug, but there is nothing left to
		// clean up; reporting failure would only wedge cleanup loops.
		log.L().Error("attempt to remove absent resource",
			zap.String("user", t.user),
			zap.Stringer("resource", res.Request()))
		return true
	}
	if live.RefCount() > 0 ||
		live.State() == model.ResourceDownloading ||
		live != res {
		t.mu.Unlock()
		log.L().Error("refusing to remove resource still in use",
			zap.String("user", t.user),
			zap.String("resource", live.String()),
			zap.Bool("same-instance", live == res))
		return false
	}
	delete(t.resources, res.Request())
	size := len(t.resources)
	t.mu.Unlock()

	if res.State() == model.ResourceLocalized && deleter != nil {
		deleter.Delete(t.user, pathToDelete(res.LocalPath()))
	}
	t.decrementFileCountForCacheDirectory(res.Request(), res)

	if t.metrics != nil {
		t.metrics.RemovedTotal.Inc()
		t.metrics.TrackedResources.Set(float64(size))
	}
	return true
}

// pathToDelete widens a leaf file path to the per-download random
// directory containing it, so the whole allocation unit is reclaimed.
// If the parent is not named like a random download directory, only the
// leaf path is deleted.
func pathToDelete(localPath string) string {
	parent := filepath.Dir(localPath)
	if randomDirPattern.MatchString(filepath.Base(parent)) {
		return parent
	}
	log.L().Warn("random directory component did not match, deleting localized path only",
		zap.String("local-path", localPath))
	return localPath
}

// PathForLocalization returns the absolute destination directory for
// localizing the identity under the given cache root, and records the
// assignment as in-progress until LocalizationCompleted resolves it.
// When fan-out control is disabled the cache root itself is returned.
func (t *ResourceTracker) PathForLocalization(
	identity model.ResourceIdentity, cacheRoot string,
) string {
	if !t.useDirectoryManager || cacheRoot == "" {
		return cacheRoot
	}

	mgr := t.directoryManager(cacheRoot)
	destination := cacheRoot
	if relPath := mgr.RelativePathForLocalization(); relPath != "" {
		destination = filepath.Join(cacheRoot, relPath)
	}
	t.inProgress.Store(identity, destination)
	return destination
}

// directoryManager returns the DirectoryManager for the cache root,
// creating it on first use. Concurrent first-use never produces two
// managers for the same root.
func (t *ResourceTracker) directoryManager(cacheRoot string) *localcache.DirectoryManager {
	if v, ok := t.dirManagers.Load(cacheRoot); ok {
		return v.(*localcache.DirectoryManager)
	}
	v, _ := t.dirManagers.LoadOrStore(
		cacheRoot, localcache.NewDirectoryManager(t.cacheConfig))
	return v.(*localcache.DirectoryManager)
}

// LocalizationCompleted resolves an assignment made by
// PathForLocalization. On success the in-progress record is simply
// cleared: the resource's own local path now reflects the truth. On
// failure the directory count taken by the assignment is given back.
func (t *ResourceTracker) LocalizationCompleted(
	identity model.ResourceIdentity, success bool,
) {
	if !t.useDirectoryManager {
		return
	}
	if success {
		t.inProgress.Delete(identity)
		return
	}
	t.decrementFileCountForCacheDirectory(identity, nil)
}

// decrementFileCountForCacheDirectory gives back the directory count
// held by one resource. The counted path is taken from the in-progress
// record if the localization never completed, otherwise derived from
// the resource's local path. The owning cache root is found by walking
// upward until a registered directory manager matches; reaching the
// top without a match means the path was never counted, a silent no-op.
func (t *ResourceTracker) decrementFileCountForCacheDirectory(
	identity model.ResourceIdentity, res *LocalizedResource,
) {
	if !t.useDirectoryManager {
		return
	}

	var resourceDir string
	if v, ok := t.inProgress.LoadAndDelete(identity); ok {
		// The resource failed before its localization completed.
		resourceDir = v.(string)
	} else if res != nil && res.LocalPath() != "" {
		resourceDir = stripDownloadComponents(res.LocalPath())
	}
	if resourceDir == "" {
		return
	}

	root := resourceDir
	var mgr *localcache.DirectoryManager
	for {
		if v, ok := t.dirManagers.Load(root); ok {
			mgr = v.(*localcache.DirectoryManager)
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return
		}
		root = parent
	}

	if resourceDir == root {
		mgr.DecrementFileCountForPath("")
		return
	}
	relPath, err := filepath.Rel(root, resourceDir)
	if err != nil {
		log.L().Warn("cannot relativize resource directory against its cache root",
			zap.String("resource-dir", resourceDir),
			zap.String("cache-root", root),
			zap.Error(err))
		return
	}
	mgr.DecrementFileCountForPath(relPath)
}

// stripDownloadComponents derives the cache directory a localized file
// was counted under by stripping the leaf file name and the random
// per-download directory above it. This encodes the structural
// assumption that assigned paths are always composed as
// <cache dir>/<random download dir>/<leaf file>.
func stripDownloadComponents(localPath string) string {
	return filepath.Dir(filepath.Dir(localPath))
}
