package mount

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/labelworks/pachstore/pkg/pfs"
)

// DirectBackend reaches repositories through the PFS API instead of a local
// filesystem view. "Mounting" a ref pins its branch head to a concrete
// commit; reads and listings are rooted at that snapshot, and writes open a
// commit transaction on the branch.
type DirectBackend struct {
	client *pfs.Client

	mu    sync.Mutex
	heads map[string]string
}

func NewDirectBackend(client *pfs.Client) *DirectBackend {
	return &DirectBackend{
		client: client,
		heads:  make(map[string]string),
	}
}

// headKey qualifies the pin key with the project: same-named repos in
// different projects on one gateway must pin independently.
func headKey(ref pfs.Ref) string {
	return ref.Project + "/" + ref.String()
}

// EnsureReady is a no-op: there is no helper process, only the remote API,
// whose reachability surfaces on the first real call.
func (b *DirectBackend) EnsureReady(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (b *DirectBackend) Mount(ctx context.Context, ref pfs.Ref, writable bool) error {
	commit, err := b.client.ResolveCommit(ctx, ref)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.heads[headKey(ref)] = commit
	b.mu.Unlock()
	log.WithField("ref", ref.URI()).WithField("commit", commit).Debug("Pinned branch head")
	return nil
}

// Unmount drops the pinned snapshot. Dropping a ref that was never pinned
// is a no-op: there is no remote state to release.
func (b *DirectBackend) Unmount(ctx context.Context, ref pfs.Ref) error {
	b.mu.Lock()
	delete(b.heads, headKey(ref))
	b.mu.Unlock()
	return nil
}

func (b *DirectBackend) Mounted(ctx context.Context, ref pfs.Ref) (bool, error) {
	b.mu.Lock()
	commit, ok := b.heads[headKey(ref)]
	b.mu.Unlock()
	if !ok {
		return false, nil
	}
	return b.client.CommitExists(ctx, ref, commit)
}

// Validate checks that the ref's branch (or pinned commit) exists.
func (b *DirectBackend) Validate(ctx context.Context, ref pfs.Ref) error {
	if ref.Commit != "" {
		exists, err := b.client.CommitExists(ctx, ref, ref.Commit)
		if err != nil {
			return err
		}
		if !exists {
			return errors.Wrapf(pfs.ErrNotFound, "commit %s of repo %s", ref.Commit, ref.Repository)
		}
		return nil
	}
	_, err := b.client.ResolveCommit(ctx, ref)
	return err
}

func (b *DirectBackend) ListKeys(ctx context.Context, ref pfs.Ref) ([]string, error) {
	commit, err := b.snapshot(ctx, ref)
	if err != nil {
		return nil, err
	}
	files, err := b.client.ListFiles(ctx, ref, commit, "/")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(files))
	for _, fi := range files {
		keys = append(keys, strings.TrimPrefix(fi.Path, "/"))
	}
	return keys, nil
}

func (b *DirectBackend) Read(ctx context.Context, ref pfs.Ref, key string) (io.ReadCloser, error) {
	commit, err := b.snapshot(ctx, ref)
	if err != nil {
		return nil, err
	}
	return b.client.GetFile(ctx, ref, commit, key)
}

func (b *DirectBackend) NewWriter(ctx context.Context, ref pfs.Ref) (Writer, error) {
	pending, err := b.client.OpenCommit(ctx, ref)
	if err != nil {
		if pfs.IsNotFound(err) {
			return nil, errors.Wrapf(ErrNotMounted, "branch %s is not writable: %v", ref.String(), err)
		}
		return nil, err
	}
	return &directWriter{pending: pending}, nil
}

// snapshot returns the commit that reads should be rooted at: the pinned
// head if the ref is mounted, otherwise the branch head resolved on the
// fly, so enumeration works against a plain resolved ref as well.
func (b *DirectBackend) snapshot(ctx context.Context, ref pfs.Ref) (string, error) {
	if ref.Commit != "" {
		return ref.Commit, nil
	}
	b.mu.Lock()
	commit, ok := b.heads[headKey(ref)]
	b.mu.Unlock()
	if ok {
		return commit, nil
	}
	return b.client.ResolveCommit(ctx, ref)
}

// directWriter accumulates files into one open commit. Nothing is visible
// to readers until Close finishes the commit; a crash before Close leaves
// the branch at its previous head.
type directWriter struct {
	pending *pfs.PendingCommit
}

func (w *directWriter) Put(ctx context.Context, key string, data []byte) error {
	return w.pending.PutFile(ctx, key, bytes.NewReader(data))
}

func (w *directWriter) Close(ctx context.Context) error {
	return w.pending.Finish(ctx)
}
