package storage

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/labelworks/pachstore/pkg/mount"
	"github.com/labelworks/pachstore/pkg/pfs"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func newTestStores(t *testing.T) (*ConfigStore, *LinkStore) {
	t.Helper()
	db := openTestDB(t)
	configs, err := NewConfigStore(db)
	if err != nil {
		t.Fatal(err)
	}
	links, err := NewLinkStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return configs, links
}

// memBackend is an in-memory Backend: mounting a ref creates an empty file
// tree for it, writes go straight through like the fuse backend.
type memBackend struct {
	mu      sync.Mutex
	mounted map[string]bool
	files   map[string]map[string][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{
		mounted: make(map[string]bool),
		files:   make(map[string]map[string][]byte),
	}
}

func (m *memBackend) EnsureReady(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (m *memBackend) Mount(ctx context.Context, ref pfs.Ref, writable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted[ref.String()] = true
	if m.files[ref.String()] == nil {
		m.files[ref.String()] = make(map[string][]byte)
	}
	return nil
}

func (m *memBackend) Unmount(ctx context.Context, ref pfs.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mounted, ref.String())
	return nil
}

func (m *memBackend) Mounted(ctx context.Context, ref pfs.Ref) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted[ref.String()], nil
}

func (m *memBackend) ListKeys(ctx context.Context, ref pfs.Ref) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted[ref.String()] {
		return nil, errors.Wrapf(mount.ErrNotMounted, "%s", ref.String())
	}
	var keys []string
	for k := range m.files[ref.String()] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memBackend) Read(ctx context.Context, ref pfs.Ref, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted[ref.String()] {
		return nil, errors.Wrapf(mount.ErrNotMounted, "%s", ref.String())
	}
	data, ok := m.files[ref.String()][key]
	if !ok {
		return nil, errors.Wrapf(pfs.ErrNotFound, "%s", key)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (m *memBackend) NewWriter(ctx context.Context, ref pfs.Ref) (mount.Writer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted[ref.String()] {
		return nil, errors.Wrapf(mount.ErrNotMounted, "%s", ref.String())
	}
	return &memWriter{backend: m, ref: ref}, nil
}

func (m *memBackend) put(ref pfs.Ref, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[ref.String()][key] = data
}

type memWriter struct {
	backend *memBackend
	ref     pfs.Ref
}

func (w *memWriter) Put(ctx context.Context, key string, data []byte) error {
	w.backend.put(w.ref, key, data)
	return nil
}

func (w *memWriter) Close(ctx context.Context) error {
	return nil
}

func newTestController(backend mount.Backend) *mount.Controller {
	return mount.NewController(backend, mount.NewRegistry())
}
