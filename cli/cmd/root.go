package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/labelworks/pachstore/pkg/command"
)

var rootCmd = &cobra.Command{
	Use:   "pachstore",
	Short: "Manage Pachyderm-backed task storage configurations",
	Long:  `pachstore mounts Pachyderm repositories as task storage and syncs tasks and annotations with them.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&command.GlobalCommandOption.Debug, "debug", "d", false, "debug mode, output verbose output")
	rootCmd.PersistentFlags().BoolVarP(&command.GlobalCommandOption.Quiet, "quiet", "q", false, "disable spinner and logs")
	rootCmd.PersistentFlags().StringVarP(&command.GlobalCommandOption.ConfigPath, "config", "c", "", "Path to the engine config file")
	rootCmd.AddCommand(NewCreateCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewMountCommand())
	rootCmd.AddCommand(NewUnmountCommand())
	rootCmd.AddCommand(NewSyncImportCommand())
	rootCmd.AddCommand(NewSyncExportCommand())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
