package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/labelworks/pachstore/pkg/config"
	"github.com/labelworks/pachstore/pkg/mountserver"
	"github.com/labelworks/pachstore/pkg/pfs"
)

// newTestEngine wires an engine against a fake mount-server that
// materializes mounts as plain directories under a temp root. Files written
// into a mount survive an unmount/remount cycle, the way the real server
// flushes them to the repository.
func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	remote := make(map[string]map[string][]byte)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos":
			listing := map[string]mountserver.Repo{
				"images": {
					Name: "images",
					Branches: map[string]mountserver.Branch{
						"master": {Name: "master"},
					},
				},
			}
			_ = json.NewEncoder(w).Encode(listing)
		case strings.HasSuffix(r.URL.Path, "/_mount"):
			name := r.URL.Query().Get("name")
			mp := filepath.Join(root, name)
			if err := os.MkdirAll(mp, 0755); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			for key, data := range remote[name] {
				path := filepath.Join(mp, filepath.FromSlash(key))
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				if err := os.WriteFile(path, data, 0644); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
			}
		case strings.HasSuffix(r.URL.Path, "/_unmount"):
			name := r.URL.Query().Get("name")
			mp := filepath.Join(root, name)
			files := make(map[string][]byte)
			_ = filepath.WalkDir(mp, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				rel, err := filepath.Rel(mp, path)
				if err != nil {
					return err
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				files[filepath.ToSlash(rel)] = data
				return nil
			})
			remote[name] = files
			if err := os.RemoveAll(mp); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	conf := &config.Config{
		MountRoot:       root,
		MountServerURL:  server.URL,
		ReadyTimeoutSec: 2,
		MountWaitSec:    2,
	}
	engine, err := NewEngineWithDB(conf, openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	engine.fuse.SetMountCheck(func(string) (bool, error) { return true, nil })
	return engine, root
}

func TestEngineMountUnmount(t *testing.T) {
	g := NewWithT(t)

	engine, root := newTestEngine(t)
	cfg := &Config{Repository: "images"}
	g.Expect(engine.Configs.Create(cfg)).To(Succeed())

	g.Expect(engine.Mount(context.Background(), cfg, false)).To(Succeed())
	g.Expect(filepath.Join(root, "images@master")).To(BeADirectory())

	g.Expect(engine.Unmount(context.Background(), cfg)).To(Succeed())
	g.Expect(filepath.Join(root, "images@master")).NotTo(BeADirectory())
}

func TestEngineValidate(t *testing.T) {
	g := NewWithT(t)

	engine, _ := newTestEngine(t)

	cfg := &Config{Repository: "images"}
	g.Expect(engine.Configs.Create(cfg)).To(Succeed())
	g.Expect(engine.Validate(context.Background(), cfg)).To(Succeed())

	bad := &Config{Repository: "nosuchrepo"}
	g.Expect(engine.Configs.Create(bad)).To(Succeed())
	g.Expect(pfs.IsNotFound(engine.Validate(context.Background(), bad))).To(BeTrue())
}

func TestEngineAnnotationRoundTrip(t *testing.T) {
	g := NewWithT(t)

	engine, root := newTestEngine(t)
	cfg := &Config{Repository: "images", ProjectID: 5, Writable: true}
	g.Expect(engine.Configs.Create(cfg)).To(Succeed())

	g.Expect(engine.Mount(context.Background(), cfg, true)).To(Succeed())

	ann := &Annotation{ID: 42, TaskID: 7, ProjectID: 5, Result: json.RawMessage(`[{"value": 1}]`)}
	g.Expect(engine.OnAnnotationSaved(context.Background(), ann)).To(Succeed())

	data, err := os.ReadFile(filepath.Join(root, "images@master", "42.json"))
	g.Expect(err).NotTo(HaveOccurred())
	expected, err := defaultSerialize(ann)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(data).To(Equal(expected))

	// the exported annotation comes back through import sync exactly once
	var created []string
	factory := func(ctx context.Context, cfg *Config, key string, payload TaskPayload) (int64, error) {
		created = append(created, key)
		return 1, nil
	}
	g.Expect(engine.SyncImport(context.Background(), cfg, factory)).To(Succeed())
	g.Expect(created).To(Equal([]string{"42.json"}))

	created = nil
	g.Expect(engine.SyncImport(context.Background(), cfg, factory)).To(Succeed())
	g.Expect(created).To(BeEmpty())
}

func TestEngineAnnotationSkipsReadOnlyConfigs(t *testing.T) {
	g := NewWithT(t)

	engine, root := newTestEngine(t)
	cfg := &Config{Repository: "images", ProjectID: 5}
	g.Expect(engine.Configs.Create(cfg)).To(Succeed())
	g.Expect(engine.Mount(context.Background(), cfg, false)).To(Succeed())

	ann := &Annotation{ID: 42, ProjectID: 5, Result: json.RawMessage(`[]`)}
	g.Expect(engine.OnAnnotationSaved(context.Background(), ann)).To(Succeed())

	_, err := os.Stat(filepath.Join(root, "images@master", "42.json"))
	g.Expect(os.IsNotExist(err)).To(BeTrue())
}

func TestEngineSyncExport(t *testing.T) {
	g := NewWithT(t)

	engine, root := newTestEngine(t)
	cfg := &Config{Repository: "images", ProjectID: 5, Writable: true}
	g.Expect(engine.Configs.Create(cfg)).To(Succeed())

	pending := []*Annotation{
		{ID: 1, ProjectID: 5, Result: json.RawMessage(`[]`)},
		{ID: 2, ProjectID: 5, Result: json.RawMessage(`[]`)},
	}
	g.Expect(engine.SyncExport(context.Background(), cfg, pending)).To(Succeed())

	// the fuse flush cycle leaves the mount in place afterwards
	g.Expect(filepath.Join(root, "images@master")).To(BeADirectory())
	g.Expect(filepath.Join(root, "images@master", "1.json")).To(BeAnExistingFile())
	g.Expect(filepath.Join(root, "images@master", "2.json")).To(BeAnExistingFile())

	all, err := engine.Links.ExportLinks(cfg)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(all).To(HaveLen(2))
}

func TestEngineDeleteConfigReleasesMount(t *testing.T) {
	g := NewWithT(t)

	engine, root := newTestEngine(t)
	cfg := &Config{Repository: "images"}
	g.Expect(engine.Configs.Create(cfg)).To(Succeed())
	g.Expect(engine.Mount(context.Background(), cfg, false)).To(Succeed())

	g.Expect(engine.DeleteConfig(context.Background(), cfg)).To(Succeed())
	g.Expect(filepath.Join(root, "images@master")).NotTo(BeADirectory())

	_, err := engine.Configs.Get(cfg.ID)
	g.Expect(err).To(HaveOccurred())
}

func TestEngineDeleteConfigWithoutMount(t *testing.T) {
	g := NewWithT(t)

	engine, _ := newTestEngine(t)
	cfg := &Config{Repository: "images"}
	g.Expect(engine.Configs.Create(cfg)).To(Succeed())

	g.Expect(engine.DeleteConfig(context.Background(), cfg)).To(Succeed())
}

func TestEngineDirectConfigRequiresAddress(t *testing.T) {
	g := NewWithT(t)

	engine, _ := newTestEngine(t)
	cfg := &Config{Repository: "images", Backend: BackendDirect}
	g.Expect(engine.Configs.Create(cfg)).To(Succeed())

	err := engine.Mount(context.Background(), cfg, false)
	g.Expect(err).To(MatchError(ContainSubstring("no pachd address")))
}
