package cmd

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/motionwatch/internal/runstate"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's camera and recording status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, addr, err := daemonClient(cmd)
		if err != nil {
			if errors.Is(err, runstate.ErrNotRunning) {
				cmd.Println("motionwatch is not running")
				return nil
			}
			return err
		}

		st, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		camera := "stopped"
		if st.CameraRunning {
			camera = "running"
		}
		cmd.Printf("Control:   %s\n", addr)
		cmd.Printf("Camera:    %s\n", camera)
		cmd.Printf("State:     %s\n", st.State)
		if st.SessionID != "" {
			cmd.Printf("Session:   %s (%d frames buffered)\n", st.SessionID, st.Buffered)
		}
		if !st.StartedAt.IsZero() {
			cmd.Printf("Uptime:    %s\n", time.Since(st.StartedAt).Round(time.Second))
		}
		cmd.Printf("Frames:    %d\n", st.Frames)
		cmd.Printf("Clips:     %d\n", st.Clips)
		if st.LastClip != "" {
			cmd.Printf("Last clip: %s\n", st.LastClip)
		}
		if st.CaptureErrors+st.CompareErrors+st.WriteErrors > 0 {
			cmd.Printf("Errors:    capture %d, compare %d, write %d\n", st.CaptureErrors, st.CompareErrors, st.WriteErrors)
		}
		return nil
	},
}

func init() {
	addAddrFlag(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status as JSON")
	rootCmd.AddCommand(statusCmd)
}
