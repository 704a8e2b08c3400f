package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/labelworks/pachstore/common"
	"github.com/labelworks/pachstore/pkg/pfs"
)

// BackendKind selects how a configuration reaches its repository.
type BackendKind string

const (
	// BackendFuse goes through the mount-server's local filesystem view.
	BackendFuse BackendKind = "fuse"
	// BackendDirect goes through the PFS API.
	BackendDirect BackendKind = "direct"
)

// Config is one persisted storage configuration: a repository target plus
// how to reach and interpret it. The Ref is reconstructed from the
// persisted fields on every access, never cached on the struct.
type Config struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Title      string
	ProjectID  int64 `gorm:"index"`
	PfsProject string
	Repository string
	Branch     string
	Commit     string
	Address    string
	Backend    BackendKind
	Writable   bool
	UseBlobURL bool
}

// RegistryKey identifies this configuration in the mount registry.
func (c *Config) RegistryKey() string {
	return fmt.Sprintf("pachyderm-%d", c.ID)
}

// Ref builds the configuration's repository ref. The repository field may
// carry an inline "@branch" suffix; an explicit branch, project, or commit
// field overrides it.
func (c *Config) Ref() pfs.Ref {
	ref := pfs.ParseRef(c.Repository)
	if c.Branch != "" {
		ref.Branch = c.Branch
	}
	if c.PfsProject != "" {
		ref.Project = c.PfsProject
	}
	if c.Commit != "" {
		ref = ref.Pinned(c.Commit)
	}
	return ref
}

// ConfigStore persists storage configurations.
type ConfigStore struct {
	db *gorm.DB
}

func NewConfigStore(db *gorm.DB) (*ConfigStore, error) {
	if err := db.AutoMigrate(&Config{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate storage configurations")
	}
	return &ConfigStore{db: db}, nil
}

func (s *ConfigStore) Create(cfg *Config) error {
	if cfg.Repository == "" {
		return errors.New("repository is required")
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendFuse
	}
	if cfg.Branch == "" && !strings.Contains(cfg.Repository, "@") {
		cfg.Branch = common.DefaultBranch
	}
	return errors.Wrap(s.db.Create(cfg).Error, "failed to create storage configuration")
}

func (s *ConfigStore) Get(id uint) (*Config, error) {
	var cfg Config
	if err := s.db.First(&cfg, id).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load storage configuration %d", id)
	}
	return &cfg, nil
}

func (s *ConfigStore) Update(cfg *Config) error {
	return errors.Wrap(s.db.Save(cfg).Error, "failed to update storage configuration")
}

// ListForProject returns the configurations attached to a platform project.
func (s *ConfigStore) ListForProject(projectID int64) ([]Config, error) {
	var cfgs []Config
	if err := s.db.Where("project_id = ?", projectID).Find(&cfgs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list storage configurations")
	}
	return cfgs, nil
}

// Delete removes the configuration row. Callers must release the
// configuration's mount first, via Controller.OnConfigDeleted.
func (s *ConfigStore) Delete(id uint) error {
	return errors.Wrapf(s.db.Delete(&Config{}, id).Error, "failed to delete storage configuration %d", id)
}
