package mount

import "sync"

// Action is what the controller must do to bring a configuration's mount in
// line with its desired ref.
type Action int

const (
	// ActionNoOp means the desired ref is already recorded.
	ActionNoOp Action = iota
	// ActionMountOnly means nothing is recorded for the configuration.
	ActionMountOnly
	// ActionUnmountThenMount means a different ref is recorded; it has to be
	// unmounted before the desired one is mounted.
	ActionUnmountThenMount
)

// Record is one registry entry: the ref currently mounted on behalf of a
// configuration and the mode it was mounted with.
type Record struct {
	Ref      string
	Writable bool
}

// Registry tracks which ref each storage configuration currently has
// mounted. It is an in-memory cache of external reality: it starts empty on
// process restart and may be stale relative to the actual mounts on disk,
// so the controller always double-checks physical presence. The registry
// itself never performs I/O.
type Registry struct {
	mu     sync.Mutex
	mounts map[string]Record
}

func NewRegistry() *Registry {
	return &Registry{
		mounts: make(map[string]Record),
	}
}

func (r *Registry) Record(configID, ref string, writable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts[configID] = Record{Ref: ref, Writable: writable}
}

func (r *Registry) Forget(configID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mounts, configID)
}

// Lookup returns the recorded entry for a configuration, if any.
func (r *Registry) Lookup(configID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.mounts[configID]
	return rec, ok
}

// Reconcile decides what the controller must do so that configID ends up
// mounted at desiredRef. The previous ref is returned alongside
// ActionUnmountThenMount.
func (r *Registry) Reconcile(configID, desiredRef string) (Action, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.mounts[configID]
	switch {
	case !ok:
		return ActionMountOnly, ""
	case rec.Ref == desiredRef:
		return ActionNoOp, ""
	default:
		return ActionUnmountThenMount, rec.Ref
	}
}
