package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labelworks/pachstore/pkg/command"
)

type DeleteOption struct {
	ID uint
}

func (opt *DeleteOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	return nil
}

func (opt *DeleteOption) Validate(ctx context.Context) error {
	return nil
}

func (opt *DeleteOption) Run(ctx context.Context, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(engine, opt.ID)
	if err != nil {
		return err
	}
	if err := engine.DeleteConfig(ctx, cfg); err != nil {
		return err
	}
	fmt.Printf("Deleted storage configuration %d\n", cfg.ID)
	return nil
}

func NewDeleteCommand() *cobra.Command {
	opt := &DeleteOption{}
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Unmount and delete a storage configuration",
		RunE:  command.MakeRunE(opt),
	}
	cmd.Flags().UintVarP(&opt.ID, "id", "i", 0, "Storage configuration id")
	return cmd
}
