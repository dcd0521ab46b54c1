package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tactician-chess/tactician/internal/config"
)

// defaultConfigName is where `config init` writes by default.
const defaultConfigName = "tactician.yaml"

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigCheckCommand())

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			writeErr := config.WriteDefault(path)
			if writeErr != nil {
				return writeErr
			}

			fmt.Fprintf(os.Stdout, "wrote %s\n", path)

			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", defaultConfigName, "Destination path")

	return cmd
}

func newConfigCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <config.yaml>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, loadErr := config.LoadConfig(args[0])
			if loadErr != nil {
				return loadErr
			}

			fmt.Fprintf(os.Stdout, "%s is valid\n", args[0])

			return nil
		},
	}
}
