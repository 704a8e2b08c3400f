package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/labelworks/pachstore/common"
	"github.com/labelworks/pachstore/pkg/mount"
)

// MalformedTaskError reports a key whose contents are not a single JSON
// object when the configuration demands JSON tasks. It is a permanent data
// error: retrying the same key cannot succeed.
type MalformedTaskError struct {
	Key    string
	Reason string
}

func (e *MalformedTaskError) Error() string {
	return fmt.Sprintf("key %s is not a valid JSON task: %s", e.Key, e.Reason)
}

// TaskPayload is the data handed to the platform for one imported key:
// either the parsed JSON object, or a data-URL descriptor for blob keys.
type TaskPayload map[string]interface{}

// TaskFactory turns a payload into a platform task and returns its id. It
// belongs to the owning application, not the engine.
type TaskFactory func(ctx context.Context, cfg *Config, key string, payload TaskPayload) (int64, error)

// ImportSyncer enumerates a configuration's repository view and feeds new
// keys to the platform.
type ImportSyncer struct {
	controller *mount.Controller
	backend    mount.Backend
	links      *LinkStore
	mountWait  time.Duration
}

func NewImportSyncer(controller *mount.Controller, backend mount.Backend, links *LinkStore) *ImportSyncer {
	return &ImportSyncer{
		controller: controller,
		backend:    backend,
		links:      links,
		mountWait:  mount.DefaultMountWait,
	}
}

// IterKeys enumerates the storage keys of the configuration's view. Each
// call re-enumerates from scratch; one pass over an unchanged view yields
// each key exactly once.
func (s *ImportSyncer) IterKeys(ctx context.Context, cfg *Config) ([]string, error) {
	return s.backend.ListKeys(ctx, cfg.Ref())
}

// ReadTask loads the task payload for one key. Blob configurations get a
// data-URL descriptor without touching the file; JSON configurations get
// the parsed object and a MalformedTaskError on anything else.
func (s *ImportSyncer) ReadTask(ctx context.Context, cfg *Config, key string) (TaskPayload, error) {
	if cfg.UseBlobURL {
		return TaskPayload{
			common.TaskDataUndefinedKey: fmt.Sprintf("/data/pfs/?d=%s/%s", cfg.Ref().String(), key),
		}, nil
	}

	rc, err := s.backend.Read(ctx, cfg.Ref(), key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", key)
	}

	var payload TaskPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &MalformedTaskError{Key: key, Reason: err.Error()}
	}
	if payload == nil {
		return nil, &MalformedTaskError{Key: key, Reason: "expected a JSON object"}
	}
	return payload, nil
}

// Sync mounts the configuration's target read-only and creates a task for
// every key that has no import link yet.
func (s *ImportSyncer) Sync(ctx context.Context, cfg *Config, createTask TaskFactory) error {
	if err := s.controller.Mount(ctx, cfg.RegistryKey(), cfg.Ref(), false, s.mountWait); err != nil {
		return err
	}

	keys, err := s.IterKeys(ctx, cfg)
	if err != nil {
		return err
	}

	logger := log.WithField("config", cfg.RegistryKey()).WithField("ref", cfg.Ref().String())
	created := 0
	for _, key := range keys {
		linked, err := s.links.HasImportLink(cfg, key)
		if err != nil {
			return err
		}
		if linked {
			continue
		}
		payload, err := s.ReadTask(ctx, cfg, key)
		if err != nil {
			return err
		}
		taskID, err := createTask(ctx, cfg, key, payload)
		if err != nil {
			return errors.Wrapf(err, "failed to create task for %s", key)
		}
		if err := s.links.CreateImportLink(cfg, key, taskID); err != nil {
			return err
		}
		created++
	}
	logger.WithField("keys", len(keys)).WithField("created", created).Info("Import sync finished")
	return nil
}
