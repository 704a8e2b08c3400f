package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labelworks/pachstore/pkg/command"
)

type MountOption struct {
	ID       uint
	Writable bool
}

func (opt *MountOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	return nil
}

func (opt *MountOption) Validate(ctx context.Context) error {
	return nil
}

func (opt *MountOption) Run(ctx context.Context, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(engine, opt.ID)
	if err != nil {
		return err
	}

	s := command.StartSpinner("Mounting %s...", cfg.Ref().String())
	err = engine.Mount(ctx, cfg, opt.Writable || cfg.Writable)
	s.Stop()
	if err != nil {
		return err
	}
	fmt.Printf("Mounted %s\n", cfg.Ref().String())
	return nil
}

func NewMountCommand() *cobra.Command {
	opt := &MountOption{}
	cmd := &cobra.Command{
		Use:   "mount",
		Short: "Mount a storage configuration's repository",
		RunE:  command.MakeRunE(opt),
	}
	cmd.Flags().UintVarP(&opt.ID, "id", "i", 0, "Storage configuration id")
	cmd.Flags().BoolVarP(&opt.Writable, "writable", "w", false, "Mount read-write")
	return cmd
}
