package storage

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportLink joins a platform task to the storage key it was created from.
type ImportLink struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	ConfigID uint   `gorm:"uniqueIndex:idx_import_config_key"`
	Key      string `gorm:"uniqueIndex:idx_import_config_key"`
	TaskID   int64
}

// ExportLink joins a platform annotation to the storage key it was written
// to. Re-exporting the same annotation overwrites the same key, so there is
// at most one link per (configuration, annotation).
type ExportLink struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ConfigID     uint  `gorm:"uniqueIndex:idx_export_config_ann"`
	AnnotationID int64 `gorm:"uniqueIndex:idx_export_config_ann"`
	Key          string
}

// LinkStore persists import and export links.
type LinkStore struct {
	db *gorm.DB
}

func NewLinkStore(db *gorm.DB) (*LinkStore, error) {
	if err := db.AutoMigrate(&ImportLink{}, &ExportLink{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate link records")
	}
	return &LinkStore{db: db}, nil
}

// HasImportLink reports whether a task was already created for the key.
func (s *LinkStore) HasImportLink(cfg *Config, key string) (bool, error) {
	var count int64
	err := s.db.Model(&ImportLink{}).
		Where("config_id = ? AND key = ?", cfg.ID, key).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to look up import link")
	}
	return count > 0, nil
}

func (s *LinkStore) CreateImportLink(cfg *Config, key string, taskID int64) error {
	link := ImportLink{ConfigID: cfg.ID, Key: key, TaskID: taskID}
	return errors.Wrapf(s.db.Create(&link).Error, "failed to create import link for %s", key)
}

// CreateExportLink records that an annotation was written to key, updating
// the existing link on re-export.
func (s *LinkStore) CreateExportLink(cfg *Config, key string, annotationID int64) error {
	link := ExportLink{ConfigID: cfg.ID, AnnotationID: annotationID, Key: key}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_id"}, {Name: "annotation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"key", "updated_at"}),
	}).Create(&link).Error
	return errors.Wrapf(err, "failed to create export link for %s", key)
}

// ExportLinks returns every export link of a configuration.
func (s *LinkStore) ExportLinks(cfg *Config) ([]ExportLink, error) {
	var links []ExportLink
	if err := s.db.Where("config_id = ?", cfg.ID).Find(&links).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list export links")
	}
	return links, nil
}
