package model

import "fmt"

// ContainerID identifies the container on whose behalf a resource
// is requested or released.
type ContainerID = string

// Visibility is the ownership boundary under which a resource is cached.
type Visibility string

// all cache visibility classes
const (
	VisibilityPublic      = Visibility("public")
	VisibilityPrivate     = Visibility("private")
	VisibilityApplication = Visibility("application")
)

// ResourceIdentity identifies one cacheable artifact. It is used as a
// map key, so it must remain comparable and all its fields must be
// immutable value types.
type ResourceIdentity struct {
	// Source is the remote location the artifact is fetched from.
	Source string
	// Pattern is an optional decompression pattern applied after
	// the fetch.
	Pattern string
	// Visibility scopes the cache entry.
	Visibility Visibility
}

// Key returns a stable string form of the identity, suitable for
// sharding and logging.
func (r ResourceIdentity) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.Visibility, r.Source, r.Pattern)
}

func (r ResourceIdentity) String() string {
	return r.Key()
}

// ResourceState is the lifecycle state of a localized resource.
type ResourceState int32

// all resource lifecycle states
const (
	ResourceInit ResourceState = iota
	ResourceDownloading
	ResourceLocalized
	ResourceFailed
)

func (s ResourceState) String() string {
	switch s {
	case ResourceInit:
		return "INIT"
	case ResourceDownloading:
		return "DOWNLOADING"
	case ResourceLocalized:
		return "LOCALIZED"
	case ResourceFailed:
		return "FAILED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(s))
}

// EventType is the action carried by a ResourceEvent.
type EventType int

// all resource event types
const (
	EventRequest EventType = iota
	EventLocalized
	EventRelease
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventRequest:
		return "REQUEST"
	case EventLocalized:
		return "LOCALIZED"
	case EventRelease:
		return "RELEASE"
	case EventFailed:
		return "FAILED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// ResourceEvent drives the lifecycle of one resource. Events for the
// same identity must be delivered in a serialized order, which the
// dispatcher guarantees by sharding on the identity.
type ResourceEvent struct {
	Identity ResourceIdentity
	Type     EventType

	// Container is set for REQUEST and RELEASE events.
	Container ContainerID
	// LocalPath and Size are set for LOCALIZED events.
	LocalPath string
	Size      int64
	// Err is set for FAILED events.
	Err error
}

// DownloadRequest is published to the consumer-facing channel when a
// resource enters the DOWNLOADING state and an actual fetch is needed.
type DownloadRequest struct {
	Identity  ResourceIdentity
	Container ContainerID
}
