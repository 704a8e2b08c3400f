package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/labelworks/pachstore/pkg/config"
	"github.com/labelworks/pachstore/pkg/mount"
	"github.com/labelworks/pachstore/pkg/mountserver"
	"github.com/labelworks/pachstore/pkg/pfs"
)

// Engine ties the lifecycle machinery together for the application: one
// registry, one fuse backend over the local mount-server, and one direct
// backend per gateway address, each behind its own controller. Multiple
// engines can coexist in one process; nothing here is package-global.
type Engine struct {
	conf     *config.Config
	registry *mount.Registry
	clients  *pfs.ClientCache

	fuse           *mount.FuseBackend
	fuseController *mount.Controller

	mu     sync.Mutex
	direct map[string]*backendSet

	Configs *ConfigStore
	Links   *LinkStore
}

type backendSet struct {
	backend    mount.Backend
	controller *mount.Controller
}

// NewEngine opens the engine database and wires the shared components.
func NewEngine(conf *config.Config) (*Engine, error) {
	db, err := gorm.Open(sqlite.Open(conf.DatabasePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", conf.DatabasePath)
	}
	return NewEngineWithDB(conf, db)
}

// NewEngineWithDB wires an engine over an existing database handle.
func NewEngineWithDB(conf *config.Config, db *gorm.DB) (*Engine, error) {
	configs, err := NewConfigStore(db)
	if err != nil {
		return nil, err
	}
	links, err := NewLinkStore(db)
	if err != nil {
		return nil, err
	}

	msClient := mountserver.NewClient(conf.MountServerURL)
	supervisor := mountserver.NewSupervisor(msClient)
	registry := mount.NewRegistry()
	fuse := mount.NewFuseBackend(msClient, supervisor, conf.MountRoot)
	fuseController := mount.NewController(fuse, registry)
	fuseController.SetReadyTimeout(time.Duration(conf.ReadyTimeoutSec) * time.Second)

	return &Engine{
		conf:           conf,
		registry:       registry,
		clients:        pfs.NewClientCache(),
		fuse:           fuse,
		fuseController: fuseController,
		direct:         make(map[string]*backendSet),
		Configs:        configs,
		Links:          links,
	}, nil
}

// backendFor returns the backend and controller serving a configuration.
func (e *Engine) backendFor(cfg *Config) (mount.Backend, *mount.Controller, error) {
	if cfg.Backend != BackendDirect {
		return e.fuse, e.fuseController, nil
	}

	address := cfg.Address
	if address == "" {
		address = e.conf.PachdAddress
	}
	if address == "" {
		return nil, nil, errors.New("direct-API configuration has no pachd address")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if set, ok := e.direct[address]; ok {
		return set.backend, set.controller, nil
	}
	client, err := e.clients.Get(address)
	if err != nil {
		return nil, nil, err
	}
	backend := mount.NewDirectBackend(client)
	controller := mount.NewController(backend, e.registry)
	controller.SetReadyTimeout(e.readyTimeout())
	set := &backendSet{
		backend:    backend,
		controller: controller,
	}
	e.direct[address] = set
	return set.backend, set.controller, nil
}

func (e *Engine) mountWait() time.Duration {
	return time.Duration(e.conf.MountWaitSec) * time.Second
}

func (e *Engine) readyTimeout() time.Duration {
	return time.Duration(e.conf.ReadyTimeoutSec) * time.Second
}

// Mount brings a configuration's target into a mounted state.
func (e *Engine) Mount(ctx context.Context, cfg *Config, writable bool) error {
	_, controller, err := e.backendFor(cfg)
	if err != nil {
		return err
	}
	return controller.Mount(ctx, cfg.RegistryKey(), cfg.Ref(), writable, e.mountWait())
}

// Unmount releases a configuration's mount.
func (e *Engine) Unmount(ctx context.Context, cfg *Config) error {
	_, controller, err := e.backendFor(cfg)
	if err != nil {
		return err
	}
	return controller.Unmount(ctx, cfg.RegistryKey())
}

// Validate checks a configuration's target against the remote.
func (e *Engine) Validate(ctx context.Context, cfg *Config) error {
	backend, _, err := e.backendFor(cfg)
	if err != nil {
		return err
	}
	return ValidateConnection(ctx, backend, cfg, e.readyTimeout())
}

// SyncImport mounts the configuration and creates tasks for new keys.
func (e *Engine) SyncImport(ctx context.Context, cfg *Config, createTask TaskFactory) error {
	backend, controller, err := e.backendFor(cfg)
	if err != nil {
		return err
	}
	syncer := NewImportSyncer(controller, backend, e.Links)
	syncer.mountWait = e.mountWait()
	return syncer.Sync(ctx, cfg, createTask)
}

// SyncExport writes a batch of annotations to the configuration's target.
func (e *Engine) SyncExport(ctx context.Context, cfg *Config, pending []*Annotation) error {
	backend, controller, err := e.backendFor(cfg)
	if err != nil {
		return err
	}
	syncer := NewExportSyncer(controller, backend, e.Links)
	syncer.mountWait = e.mountWait()
	return syncer.SyncAll(ctx, cfg, pending)
}

// OnAnnotationSaved exports one annotation to every writable configuration
// of its project. Wire the platform's persistence hook to this.
func (e *Engine) OnAnnotationSaved(ctx context.Context, a *Annotation) error {
	cfgs, err := e.Configs.ListForProject(a.ProjectID)
	if err != nil {
		return err
	}
	for i := range cfgs {
		cfg := &cfgs[i]
		if !cfg.Writable {
			continue
		}
		backend, controller, err := e.backendFor(cfg)
		if err != nil {
			return err
		}
		syncer := NewExportSyncer(controller, backend, e.Links)
		if err := syncer.SaveAnnotation(ctx, cfg, a); err != nil {
			return errors.Wrapf(err, "failed to export annotation %d to %s", a.ID, cfg.Ref().String())
		}
	}
	return nil
}

// DeleteConfig unmounts a configuration's target if needed, then deletes
// the row, so no mount outlives its configuration.
func (e *Engine) DeleteConfig(ctx context.Context, cfg *Config) error {
	_, controller, err := e.backendFor(cfg)
	if err != nil {
		return err
	}
	if err := controller.OnConfigDeleted(ctx, cfg.RegistryKey(), cfg.Ref()); err != nil {
		return err
	}
	return e.Configs.Delete(cfg.ID)
}
