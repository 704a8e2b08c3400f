package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/labelworks/pachstore/common"
	"github.com/labelworks/pachstore/pkg/mount"
)

// Annotation is the engine's view of a platform annotation: identity plus
// result payload. The domain model itself lives in the platform.
type Annotation struct {
	ID        int64           `json:"id"`
	TaskID    int64           `json:"task"`
	ProjectID int64           `json:"-"`
	Result    json.RawMessage `json:"result"`
}

// SerializeFunc renders an annotation to the bytes written to storage. The
// platform injects its own serializer; the default marshals the Annotation.
type SerializeFunc func(*Annotation) ([]byte, error)

func defaultSerialize(a *Annotation) ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	return data, errors.Wrap(err, "failed to serialize annotation")
}

// ExportKeyFor derives the storage key of an annotation. The key depends
// only on the annotation's identity, so re-exports overwrite in place.
func ExportKeyFor(a *Annotation) string {
	return strconv.FormatInt(a.ID, 10) + common.AnnotationKeySuffix
}

// ExportSyncer writes annotations into a configuration's repository and
// records an export link for each successful write.
type ExportSyncer struct {
	controller *mount.Controller
	backend    mount.Backend
	links      *LinkStore
	serialize  SerializeFunc
	mountWait  time.Duration
}

func NewExportSyncer(controller *mount.Controller, backend mount.Backend, links *LinkStore) *ExportSyncer {
	return &ExportSyncer{
		controller: controller,
		backend:    backend,
		links:      links,
		serialize:  defaultSerialize,
		mountWait:  mount.DefaultMountWait,
	}
}

// SetSerializer replaces the default annotation serializer.
func (s *ExportSyncer) SetSerializer(fn SerializeFunc) {
	s.serialize = fn
}

// SaveAnnotation writes one annotation under its deterministic key. The
// export link is created only after the write succeeds; a failed write
// leaves no link.
func (s *ExportSyncer) SaveAnnotation(ctx context.Context, cfg *Config, a *Annotation) error {
	data, err := s.serialize(a)
	if err != nil {
		return err
	}

	w, err := s.backend.NewWriter(ctx, cfg.Ref())
	if err != nil {
		if errors.Is(err, mount.ErrNotMounted) {
			return errors.Wrapf(err, "output repository %q is not mounted, sync the target storage first", cfg.Ref().String())
		}
		return err
	}

	key := ExportKeyFor(a)
	if err := w.Put(ctx, key, data); err != nil {
		return err
	}
	if err := w.Close(ctx); err != nil {
		return err
	}

	log.WithField("ref", cfg.Ref().String()).WithField("key", key).Debug("Exported annotation")
	return s.links.CreateExportLink(cfg, key, a.ID)
}

// SyncAll writes a batch of annotations in one pass. With the direct
// backend the whole pass lands in a single commit, so readers see either
// the previous head or the complete batch. With the fuse backend writes go
// through the mount's write buffer, so the pass finishes with an
// unmount/remount cycle to make the remote side observe the batch; that
// path is explicitly not atomic.
func (s *ExportSyncer) SyncAll(ctx context.Context, cfg *Config, pending []*Annotation) error {
	ref := cfg.Ref()
	configID := cfg.RegistryKey()
	if err := s.controller.Mount(ctx, configID, ref, true, s.mountWait); err != nil {
		return err
	}

	w, err := s.backend.NewWriter(ctx, ref)
	if err != nil {
		return err
	}

	type written struct {
		key          string
		annotationID int64
	}
	var batch []written
	for _, a := range pending {
		data, err := s.serialize(a)
		if err != nil {
			return err
		}
		key := ExportKeyFor(a)
		if err := w.Put(ctx, key, data); err != nil {
			return err
		}
		batch = append(batch, written{key: key, annotationID: a.ID})
	}
	if err := w.Close(ctx); err != nil {
		return err
	}

	for _, item := range batch {
		if err := s.links.CreateExportLink(cfg, item.key, item.annotationID); err != nil {
			return err
		}
	}

	if _, ok := s.backend.(*mount.FuseBackend); ok {
		if err := s.controller.Unmount(ctx, configID); err != nil {
			return err
		}
		if err := s.controller.Mount(ctx, configID, ref, true, s.mountWait); err != nil {
			return err
		}
	}

	log.WithField("ref", ref.String()).WithField("annotations", len(batch)).Info("Export sync finished")
	return nil
}
