package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/motionwatch/internal/config"
)

var (
	initGlobal   bool
	initForce    bool
	initDefaults bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a motionwatch.toml (or the global config) interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ProjectFile
		if initGlobal {
			p, err := config.GlobalPath()
			if err != nil {
				return err
			}
			path = p
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		c := GetConfig()
		if !initDefaults {
			edited, err := config.RunWizard(cmd.InOrStdin(), cmd.OutOrStdout(), c)
			if err != nil {
				return fmt.Errorf("init cancelled: %w", err)
			}
			c = edited
		}
		if err := c.ValidateLenient(); err != nil {
			return err
		}
		if err := config.Save(path, c); err != nil {
			return err
		}
		cmd.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "write the global config instead of ./motionwatch.toml")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&initDefaults, "defaults", false, "write the current settings without prompting")
	rootCmd.AddCommand(initCmd)
}
