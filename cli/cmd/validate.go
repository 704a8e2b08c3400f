package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labelworks/pachstore/pkg/command"
)

type ValidateOption struct {
	ID uint
}

func (opt *ValidateOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	return nil
}

func (opt *ValidateOption) Validate(ctx context.Context) error {
	return nil
}

func (opt *ValidateOption) Run(ctx context.Context, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(engine, opt.ID)
	if err != nil {
		return err
	}
	if err := engine.Validate(ctx, cfg); err != nil {
		return err
	}
	fmt.Printf("Configuration %d targets %s: OK\n", cfg.ID, cfg.Ref().String())
	return nil
}

func NewValidateCommand() *cobra.Command {
	opt := &ValidateOption{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a storage configuration against the remote",
		RunE:  command.MakeRunE(opt),
	}
	cmd.Flags().UintVarP(&opt.ID, "id", "i", 0, "Storage configuration id")
	return cmd
}
