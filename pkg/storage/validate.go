package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/labelworks/pachstore/pkg/mount"
)

// ValidateConnection checks a configuration against the remote before it is
// saved: the backend must be reachable and the target repository/branch
// must exist. A missing target surfaces as a not-found error suitable for
// showing to the user.
func ValidateConnection(ctx context.Context, be mount.Backend, cfg *Config, readyTimeout time.Duration) error {
	if err := be.EnsureReady(ctx, readyTimeout); err != nil {
		return err
	}
	v, ok := be.(mount.Validator)
	if !ok {
		return errors.Errorf("backend %T cannot validate configurations", be)
	}
	return v.Validate(ctx, cfg.Ref())
}
