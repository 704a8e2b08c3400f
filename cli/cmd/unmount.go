package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labelworks/pachstore/pkg/command"
)

type UnmountOption struct {
	ID uint
}

func (opt *UnmountOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	return nil
}

func (opt *UnmountOption) Validate(ctx context.Context) error {
	return nil
}

func (opt *UnmountOption) Run(ctx context.Context, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(engine, opt.ID)
	if err != nil {
		return err
	}
	if err := engine.Unmount(ctx, cfg); err != nil {
		return err
	}
	fmt.Printf("Unmounted %s\n", cfg.Ref().String())
	return nil
}

func NewUnmountCommand() *cobra.Command {
	opt := &UnmountOption{}
	cmd := &cobra.Command{
		Use:   "unmount",
		Short: "Unmount a storage configuration's repository",
		RunE:  command.MakeRunE(opt),
	}
	cmd.Flags().UintVarP(&opt.ID, "id", "i", 0, "Storage configuration id")
	return cmd
}
