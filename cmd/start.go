package cmd

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Resume capturing on the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := daemonClient(cmd)
		if err != nil {
			return err
		}
		resp, err := c.Start(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Camera start requested (%d listeners).\n", resp.Delivered)
		return nil
	},
}

func init() {
	addAddrFlag(startCmd)
	rootCmd.AddCommand(startCmd)
}
