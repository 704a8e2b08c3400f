package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/labelworks/pachstore/pkg/command"
	"github.com/labelworks/pachstore/pkg/storage"
)

type CreateOption struct {
	Title      string
	ProjectID  int64
	Repository string
	Branch     string
	Commit     string
	Address    string
	Direct     bool
	Writable   bool
	BlobURLs   bool
}

func (opt *CreateOption) Complete(ctx context.Context, args []string, argsLenAtDash int) error {
	return nil
}

func (opt *CreateOption) Validate(ctx context.Context) error {
	if opt.Repository == "" {
		return errors.New("repository is required")
	}
	if opt.Direct && opt.Address == "" {
		return errors.New("pachd address is required for a direct-API configuration")
	}
	return nil
}

func (opt *CreateOption) Run(ctx context.Context, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	backend := storage.BackendFuse
	if opt.Direct {
		backend = storage.BackendDirect
	}
	cfg := &storage.Config{
		Title:      opt.Title,
		ProjectID:  opt.ProjectID,
		Repository: opt.Repository,
		Branch:     opt.Branch,
		Commit:     opt.Commit,
		Address:    opt.Address,
		Backend:    backend,
		Writable:   opt.Writable,
		UseBlobURL: opt.BlobURLs,
	}

	if err := engine.Validate(ctx, cfg); err != nil {
		return errors.Wrap(err, "failed to validate configuration")
	}
	if err := engine.Configs.Create(cfg); err != nil {
		return err
	}
	fmt.Printf("Created storage configuration %d for %s\n", cfg.ID, cfg.Ref().String())
	return nil
}

func NewCreateCommand() *cobra.Command {
	opt := &CreateOption{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a storage configuration",
		RunE:  command.MakeRunE(opt),
	}
	cmd.Flags().StringVarP(&opt.Title, "title", "t", "", "Title of the configuration")
	cmd.Flags().Int64VarP(&opt.ProjectID, "project", "p", 0, "Platform project id")
	cmd.Flags().StringVarP(&opt.Repository, "repository", "r", "", "Repository, optionally with an @branch suffix")
	cmd.Flags().StringVarP(&opt.Branch, "branch", "b", "", "Branch name")
	cmd.Flags().StringVar(&opt.Commit, "commit", "", "Pin to a specific commit")
	cmd.Flags().StringVarP(&opt.Address, "address", "a", "", "pachd gateway address for the direct-API backend")
	cmd.Flags().BoolVar(&opt.Direct, "direct", false, "Use the direct PFS API instead of the mount-server")
	cmd.Flags().BoolVarP(&opt.Writable, "writable", "w", false, "Mount read-write for export")
	cmd.Flags().BoolVar(&opt.BlobURLs, "blob-urls", false, "Import keys as blob URLs instead of parsing them as JSON tasks")
	return cmd
}
