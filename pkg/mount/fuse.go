package mount

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/labelworks/pachstore/pkg/mountserver"
	"github.com/labelworks/pachstore/pkg/pfs"
)

// FuseBackend reaches repositories through the mount-server: every mounted
// ref appears as a directory named "repo@branch" under the mount root.
type FuseBackend struct {
	client     *mountserver.Client
	supervisor *mountserver.Supervisor
	root       string
	mountCheck func(path string) (bool, error)
}

func NewFuseBackend(client *mountserver.Client, supervisor *mountserver.Supervisor, root string) *FuseBackend {
	return &FuseBackend{
		client:     client,
		supervisor: supervisor,
		root:       root,
		mountCheck: mountinfo.Mounted,
	}
}

// SetMountCheck replaces the check reporting whether the mount root is a
// live mount. The default consults the kernel's mount table.
func (b *FuseBackend) SetMountCheck(fn func(path string) (bool, error)) {
	b.mountCheck = fn
}

// MountPoint returns the local directory backing the ref's view.
func (b *FuseBackend) MountPoint(ref pfs.Ref) string {
	return filepath.Join(b.root, ref.String())
}

func (b *FuseBackend) EnsureReady(ctx context.Context, timeout time.Duration) error {
	return b.supervisor.EnsureReady(ctx, timeout)
}

func (b *FuseBackend) Mount(ctx context.Context, ref pfs.Ref, writable bool) error {
	mode := mountserver.ModeRead
	if writable {
		mode = mountserver.ModeReadWrite
	}
	log.WithField("ref", ref.String()).WithField("mode", mode).Debug("Mounting repository")
	return b.client.MountRepo(ctx, ref, mode)
}

func (b *FuseBackend) Unmount(ctx context.Context, ref pfs.Ref) error {
	log.WithField("ref", ref.String()).Debug("Unmounting repository")
	return b.client.UnmountRepo(ctx, ref)
}

// Mounted checks the mount point. Directory presence under a live root is
// the ground truth: the mount-server materializes every mounted ref as a
// subdirectory of the root, which is the actual FUSE mount. A directory
// left behind by a dead mount-server does not count as mounted.
func (b *FuseBackend) Mounted(ctx context.Context, ref pfs.Ref) (bool, error) {
	mp := b.MountPoint(ref)
	if _, err := os.Stat(mp); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to stat mount point %s", mp)
	}
	live, err := b.mountCheck(b.root)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check mount root %s", b.root)
	}
	if !live {
		log.WithField("mountPoint", mp).Debug("Directory exists but the root is not a live mount")
		return false, nil
	}
	return true, nil
}

// Validate checks that the mount root exists and that the ref's repository
// and branch are known to the control plane. The repository listing is
// fetched per call and never cached.
func (b *FuseBackend) Validate(ctx context.Context, ref pfs.Ref) error {
	if fi, err := os.Stat(b.root); err != nil || !fi.IsDir() {
		return errors.Errorf("mount directory %s does not exist", b.root)
	}
	repos, err := b.client.Repos(ctx)
	if err != nil {
		return err
	}
	repo, ok := repos[ref.Repository]
	if !ok {
		return errors.Wrapf(pfs.ErrNotFound, "repo %s", ref.Repository)
	}
	if _, ok := repo.Branches[ref.Branch]; !ok {
		return errors.Wrapf(pfs.ErrNotFound, "branch/commit %s of repo %s", ref.Branch, ref.Repository)
	}
	return nil
}

func (b *FuseBackend) ListKeys(ctx context.Context, ref pfs.Ref) ([]string, error) {
	mounted, err := b.Mounted(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !mounted {
		return nil, errors.Wrapf(ErrNotMounted, "%s", ref.String())
	}

	mp := b.MountPoint(ref)
	var keys []string
	err = filepath.WalkDir(mp, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(mp, path)
			if err != nil {
				return err
			}
			keys = append(keys, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk mount point %s", mp)
	}
	return keys, nil
}

func (b *FuseBackend) Read(ctx context.Context, ref pfs.Ref, key string) (io.ReadCloser, error) {
	mounted, err := b.Mounted(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !mounted {
		return nil, errors.Wrapf(ErrNotMounted, "%s", ref.String())
	}
	f, err := os.Open(filepath.Join(b.MountPoint(ref), filepath.FromSlash(key)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", key)
	}
	return f, nil
}

func (b *FuseBackend) NewWriter(ctx context.Context, ref pfs.Ref) (Writer, error) {
	mounted, err := b.Mounted(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !mounted {
		return nil, errors.Wrapf(ErrNotMounted, "%s", ref.String())
	}
	return &fuseWriter{dir: b.MountPoint(ref)}, nil
}

// fuseWriter writes straight through the mount point. Writes are buffered
// by the mount until the ref is unmounted, so a batch is flushed by the
// caller's unmount/remount cycle, not by Close.
type fuseWriter struct {
	dir string
}

func (w *fuseWriter) Put(ctx context.Context, key string, data []byte) error {
	path := filepath.Join(w.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create parent directory for %s", key)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", key)
	}
	return nil
}

func (w *fuseWriter) Close(ctx context.Context) error {
	return nil
}
