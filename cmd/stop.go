package cmd

import (
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Pause capturing on the running daemon; a clip in progress is finished",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := daemonClient(cmd)
		if err != nil {
			return err
		}
		resp, err := c.Stop(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Camera stop requested (%d listeners).\n", resp.Delivered)
		return nil
	},
}

func init() {
	addAddrFlag(stopCmd)
	rootCmd.AddCommand(stopCmd)
}
