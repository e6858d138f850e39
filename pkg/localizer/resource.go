package localizer

import (
	"fmt"
	"sync"
	"time"

	"github.com/gavv/monotime"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/distflow/localizer/pkg/localizer/model"
)

// DownloadRequester is the consumer-facing channel a resource publishes
// its download requests to. The tracker binds every resource it creates
// to one requester; the actual fetch engine lives behind it.
type DownloadRequester interface {
	RequestDownload(req model.DownloadRequest)
}

// LocalizedResource represents one localized artifact and owns its
// lifecycle state machine. The tracker creates instances and forwards
// events to Handle; all transition logic lives here.
type LocalizedResource struct {
	request   model.ResourceIdentity
	requester DownloadRequester

	mu        sync.RWMutex
	state     model.ResourceState
	localPath string
	size      int64
	refs      map[model.ContainerID]struct{}

	downloadStart time.Duration
}

// NewLocalizedResource creates a resource in the INIT state bound to
// the given download requester.
func NewLocalizedResource(
	request model.ResourceIdentity, requester DownloadRequester,
) *LocalizedResource {
	return &LocalizedResource{
		request:   request,
		requester: requester,
		state:     model.ResourceInit,
		refs:      make(map[model.ContainerID]struct{}),
	}
}

// Request returns the identity this resource was created for.
func (r *LocalizedResource) Request() model.ResourceIdentity {
	return r.request
}

// State returns the current lifecycle state.
func (r *LocalizedResource) State() model.ResourceState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state
}

// LocalPath returns the absolute on-disk path of the artifact. It is
// empty until the resource has been localized.
func (r *LocalizedResource) LocalPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.localPath
}

// Size returns the on-disk size reported on localization.
func (r *LocalizedResource) Size() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.size
}

// RefCount returns the number of containers currently holding a
// reference to this resource.
func (r *LocalizedResource) RefCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.refs)
}

func (r *LocalizedResource) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return fmt.Sprintf("{%s state: %s path: %s refs: %d}",
		r.request.Key(), r.state, r.localPath, len(r.refs))
}

// Handle applies one event to the state machine.
func (r *LocalizedResource) Handle(ev model.ResourceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case model.EventRequest:
		r.handleRequest(ev)
	case model.EventLocalized:
		r.handleLocalized(ev)
	case model.EventRelease:
		r.handleRelease(ev)
	case model.EventFailed:
		r.handleFailed(ev)
	}
}

func (r *LocalizedResource) handleRequest(ev model.ResourceEvent) {
	if ev.Container != "" {
		r.refs[ev.Container] = struct{}{}
	}
	if r.state != model.ResourceInit {
		return
	}

	r.state = model.ResourceDownloading
	r.downloadStart = monotime.Now()
	log.L().Info("resource download requested",
		zap.Stringer("resource", r.request),
		zap.String("container", ev.Container))
	if r.requester != nil {
		// The requester must not call back into this resource
		// synchronously; the dispatcher's queues decouple it.
		r.requester.RequestDownload(model.DownloadRequest{
			Identity:  r.request,
			Container: ev.Container,
		})
	}
}

func (r *LocalizedResource) handleLocalized(ev model.ResourceEvent) {
	if r.state == model.ResourceLocalized {
		log.L().Warn("duplicate localization notification",
			zap.Stringer("resource", r.request),
			zap.String("local-path", ev.LocalPath))
		return
	}

	var elapsed time.Duration
	if r.downloadStart != 0 {
		elapsed = monotime.Since(r.downloadStart)
	}
	r.state = model.ResourceLocalized
	r.localPath = ev.LocalPath
	r.size = ev.Size
	log.L().Info("resource localized",
		zap.Stringer("resource", r.request),
		zap.String("local-path", r.localPath),
		zap.Int64("size", r.size),
		zap.Duration("elapsed", elapsed))
}

func (r *LocalizedResource) handleRelease(ev model.ResourceEvent) {
	if _, ok := r.refs[ev.Container]; !ok {
		log.L().Warn("release from a container holding no reference",
			zap.Stringer("resource", r.request),
			zap.String("container", ev.Container))
		return
	}
	delete(r.refs, ev.Container)
}

func (r *LocalizedResource) handleFailed(ev model.ResourceEvent) {
	r.state = model.ResourceFailed
	r.refs = make(map[model.ContainerID]struct{})
	log.L().Warn("resource localization failed",
		zap.Stringer("resource", r.request),
		zap.Error(ev.Err))
}
