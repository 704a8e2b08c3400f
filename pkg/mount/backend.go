package mount

import (
	"context"
	"io"
	"time"

	"github.com/labelworks/pachstore/pkg/pfs"
)

// Backend is the capability shared by the two ways of reaching a
// repository: through the mount-server's local filesystem view, or through
// the direct PFS API. The lifecycle controller and the synchronizers only
// depend on this contract.
type Backend interface {
	// EnsureReady makes the backend reachable, starting whatever helper it
	// needs, and fails once timeout elapses.
	EnsureReady(ctx context.Context, timeout time.Duration) error

	// Mount requests that ref become accessible. It only issues the request;
	// completion is observed through Mounted.
	Mount(ctx context.Context, ref pfs.Ref, writable bool) error

	// Unmount releases the ref's view.
	Unmount(ctx context.Context, ref pfs.Ref) error

	// Mounted reports whether the ref's view is physically accessible. This
	// probe, not the registry, is the ground truth.
	Mounted(ctx context.Context, ref pfs.Ref) (bool, error)

	// ListKeys enumerates the regular files of the ref's view as storage
	// keys relative to the repository root. One pass over an unchanged view
	// yields each key exactly once.
	ListKeys(ctx context.Context, ref pfs.Ref) ([]string, error)

	// Read streams the file at key.
	Read(ctx context.Context, ref pfs.Ref, key string) (io.ReadCloser, error)

	// NewWriter opens a write session against the ref. It fails with
	// ErrNotMounted if the ref is not writable through this backend.
	NewWriter(ctx context.Context, ref pfs.Ref) (Writer, error)
}

// Validator is implemented by backends that can check a ref's existence on
// the remote before any mount is attempted. Used for user-facing
// configuration validation.
type Validator interface {
	Validate(ctx context.Context, ref pfs.Ref) error
}

// Writer is one write session. For the direct backend every Put lands in a
// single open commit that becomes visible atomically on Close; for the
// fuse backend Put writes straight through the mount point and Close is a
// no-op.
type Writer interface {
	Put(ctx context.Context, key string, data []byte) error
	Close(ctx context.Context) error
}
