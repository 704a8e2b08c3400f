package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/labelworks/pachstore/pkg/command"
	"github.com/labelworks/pachstore/pkg/storage"
)

type SyncExportOption struct {
	ID   uint
	File string

	annotations []*storage.Annotation
}

func (opt *SyncExportOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	if opt.File == "" {
		return nil
	}
	data, err := os.ReadFile(opt.File)
	if err != nil {
		return errors.Wrapf(err, "failed to read annotations file %s", opt.File)
	}
	if err := json.Unmarshal(data, &opt.annotations); err != nil {
		return errors.Wrapf(err, "failed to parse annotations file %s", opt.File)
	}
	return nil
}

func (opt *SyncExportOption) Validate(ctx context.Context) error {
	if opt.File == "" {
		return errors.New("annotations file is required")
	}
	return nil
}

func (opt *SyncExportOption) Run(ctx context.Context, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(engine, opt.ID)
	if err != nil {
		return err
	}

	s := command.StartSpinner("Exporting %d annotations to %s...", len(opt.annotations), cfg.Ref().String())
	err = engine.SyncExport(ctx, cfg, opt.annotations)
	s.Stop()
	return err
}

func NewSyncExportCommand() *cobra.Command {
	opt := &SyncExportOption{}
	cmd := &cobra.Command{
		Use:   "sync-export",
		Short: "Export a batch of annotations to a configuration's repository",
		RunE:  command.MakeRunE(opt),
	}
	cmd.Flags().UintVarP(&opt.ID, "id", "i", 0, "Storage configuration id")
	cmd.Flags().StringVarP(&opt.File, "file", "f", "", "Path to a JSON file holding an array of annotations")
	return cmd
}
