package mount

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/labelworks/pachstore/pkg/pfs"
)

const (
	// DefaultReadyTimeout bounds how long Mount waits for the backend's
	// helper to come up.
	DefaultReadyTimeout = 30 * time.Second

	// DefaultMountWait bounds how long Mount waits for the mount point to
	// appear after the mount request.
	DefaultMountWait = 30 * time.Second
)

// Controller drives the mount lifecycle of storage configurations against
// one backend. Remote call failures are returned as-is; the only local
// retries are the backend readiness probe and the mount-completion poll,
// which wait for eventual consistency rather than papering over errors.
type Controller struct {
	backend      Backend
	registry     *Registry
	readyTimeout time.Duration
	pollInterval time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewController(backend Backend, registry *Registry) *Controller {
	return &Controller{
		backend:      backend,
		registry:     registry,
		readyTimeout: DefaultReadyTimeout,
		pollInterval: time.Second,
		locks:        make(map[string]*sync.Mutex),
	}
}

// SetReadyTimeout overrides how long Mount waits for the backend to become
// ready before giving up.
func (c *Controller) SetReadyTimeout(d time.Duration) {
	if d > 0 {
		c.readyTimeout = d
	}
}

// configLock serializes lifecycle operations per configuration so that the
// registry's reconcile decision cannot be invalidated mid-operation by a
// concurrent caller working on the same configuration.
func (c *Controller) configLock(configID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[configID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[configID] = l
	}
	return l
}

// Mount brings the configuration's desired ref into a mounted state and
// records it in the registry. It is idempotent: if the ref is already
// recorded and physically present, no mount request is issued. If the
// configuration previously had a different ref mounted, that ref is
// unmounted first.
func (c *Controller) Mount(ctx context.Context, configID string, ref pfs.Ref, writable bool, wait time.Duration) error {
	l := c.configLock(configID)
	l.Lock()
	defer l.Unlock()

	if err := c.backend.EnsureReady(ctx, c.readyTimeout); err != nil {
		return err
	}

	logger := log.WithField("configID", configID).WithField("ref", ref.String())

	action, previous := c.registry.Reconcile(configID, ref.String())
	if action == ActionUnmountThenMount {
		logger.WithField("previous", previous).Info("Configuration target changed, unmounting previous ref")
		if err := c.backend.Unmount(ctx, pfs.ParseRef(previous)); err != nil {
			return errors.Wrapf(err, "failed to unmount previous ref %s", previous)
		}
		c.registry.Forget(configID)
	}

	mounted, err := c.backend.Mounted(ctx, ref)
	if err != nil {
		return err
	}
	if !mounted {
		if err := c.backend.Mount(ctx, ref, writable); err != nil {
			return err
		}
	}

	if err := c.waitMounted(ctx, ref, wait); err != nil {
		return err
	}

	c.registry.Record(configID, ref.String(), writable)
	logger.Debug("Mounted")
	return nil
}

func (c *Controller) waitMounted(ctx context.Context, ref pfs.Ref, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		mounted, err := c.backend.Mounted(ctx, ref)
		if err != nil {
			return err
		}
		if mounted {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Ref: ref.String(), Wait: wait}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// Unmount releases the configuration's recorded mount. Unmounting a
// configuration with no recorded entry is a hard ErrNotMounted. The
// registry entry is dropped even when the remote call fails, so a partial
// remote success cannot leave the registry and the physical state split.
func (c *Controller) Unmount(ctx context.Context, configID string) error {
	l := c.configLock(configID)
	l.Lock()
	defer l.Unlock()

	rec, ok := c.registry.Lookup(configID)
	if !ok {
		return errors.Wrapf(ErrNotMounted, "configuration %s", configID)
	}
	defer c.registry.Forget(configID)

	if err := c.backend.Unmount(ctx, pfs.ParseRef(rec.Ref)); err != nil {
		return errors.Wrapf(err, "failed to unmount %s", rec.Ref)
	}
	log.WithField("configID", configID).WithField("ref", rec.Ref).Debug("Unmounted")
	return nil
}

// OnConfigDeleted releases any mount owned by a configuration that is about
// to be deleted, so no mount outlives its configuration. Unlike Unmount it
// tolerates a missing registry entry and falls back to the physical probe.
func (c *Controller) OnConfigDeleted(ctx context.Context, configID string, ref pfs.Ref) error {
	if err := c.Unmount(ctx, configID); err == nil || !errors.Is(err, ErrNotMounted) {
		return err
	}

	mounted, err := c.backend.Mounted(ctx, ref)
	if err != nil {
		return err
	}
	if !mounted {
		return nil
	}
	return c.backend.Unmount(ctx, ref)
}
